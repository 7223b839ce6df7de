package main

import (
	"testing"

	"github.com/cloakchain/cloakchain/node"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, exit, _ := parseFlags(nil)
	if exit {
		t.Fatal("no-arg parse should not exit")
	}
	defaults := node.DefaultConfig()
	if cfg.Threshold != defaults.Threshold {
		t.Errorf("threshold: got %d, want %d", cfg.Threshold, defaults.Threshold)
	}
	if cfg.ExpiryBlocks != defaults.ExpiryBlocks {
		t.Errorf("expiry: got %d, want %d", cfg.ExpiryBlocks, defaults.ExpiryBlocks)
	}
	if cfg.MinStakeWei != defaults.MinStakeWei {
		t.Errorf("minstake: got %d, want %d", cfg.MinStakeWei, defaults.MinStakeWei)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	args := []string{
		"--owner", "0x00000000000000000000000000000000000000aa",
		"--sequencers", "0x00000000000000000000000000000000000000bb",
		"--threshold", "5",
		"--expiry", "128",
		"--minstake", "2000000000000000000",
		"--verbosity", "4",
	}
	cfg, exit, _ := parseFlags(args)
	if exit {
		t.Fatal("valid args should not exit")
	}
	if cfg.Threshold != 5 {
		t.Errorf("threshold: got %d, want 5", cfg.Threshold)
	}
	if cfg.ExpiryBlocks != 128 {
		t.Errorf("expiry: got %d, want 128", cfg.ExpiryBlocks)
	}
	if cfg.MinStakeWei != 2_000_000_000_000_000_000 {
		t.Errorf("minstake: got %d", cfg.MinStakeWei)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("parsed config invalid: %v", err)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	_, exit, code := parseFlags([]string{"--version"})
	if !exit || code != 0 {
		t.Errorf("version flag: exit=%v code=%d", exit, code)
	}
}

func TestParseFlagsBadValue(t *testing.T) {
	_, exit, code := parseFlags([]string{"--expiry", "not-a-number"})
	if !exit || code != 2 {
		t.Errorf("bad value: exit=%v code=%d", exit, code)
	}
}
