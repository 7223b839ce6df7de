package node

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloakchain/cloakchain/crypto"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Owner = "0x00000000000000000000000000000000000000aa"
	cfg.Sequencers = "0x00000000000000000000000000000000000000bb"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"bad owner", func(c *Config) { c.Owner = "not-an-address" }},
		{"bad sequencer", func(c *Config) { c.Sequencers = "0xbb,garbage" }},
		{"bad fee recipient", func(c *Config) { c.FeeRecipient = "xyz" }},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"max keypers below threshold", func(c *Config) { c.MaxKeypers = 2; c.Threshold = 3 }},
		{"zero expiry", func(c *Config) { c.ExpiryBlocks = 0 }},
		{"zero deadline", func(c *Config) { c.DeadlineBlocks = 0 }},
		{"verbosity out of range", func(c *Config) { c.Verbosity = 6 }},
	}
	for _, tc := range cases {
		c := validConfig()
		tc.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestNewWiresSubsystems(t *testing.T) {
	n, err := New(validConfig(), nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if n.Registry() == nil || n.Pool() == nil || n.Book() == nil || n.Queue() == nil {
		t.Fatal("subsystem not wired")
	}
	if !n.Sequencers().Authorized(common.HexToAddress("0xbb")) {
		t.Error("configured sequencer not authorized")
	}
	if n.Sequencers().Len() != 1 {
		t.Errorf("sequencers: got %d, want 1", n.Sequencers().Len())
	}
}

func TestStartStop(t *testing.T) {
	n, err := New(validConfig(), nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := n.Stop(); err != ErrNotRunning {
		t.Errorf("stop before start: got %v, want ErrNotRunning", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := n.Start(); err != ErrAlreadyRunning {
		t.Errorf("double start: got %v, want ErrAlreadyRunning", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
}

func TestOutputStore(t *testing.T) {
	s := NewOutputStore()
	blockRef := common.BytesToHash([]byte("block-1"))
	txRoot := crypto.Keccak256Hash([]byte("txs"))

	if _, ok := s.FinalizedOutput(blockRef); ok {
		t.Error("empty store should have no outputs")
	}
	root := s.PostOutput(blockRef, txRoot)
	got, ok := s.FinalizedOutput(blockRef)
	if !ok || got != root {
		t.Errorf("finalized output: got %s, want %s", got.Hex(), root.Hex())
	}

	// Finality is irreversible: re-posting keeps the first root.
	other := s.PostOutput(blockRef, crypto.Keccak256Hash([]byte("other")))
	if other != root {
		t.Error("re-post must not replace a finalized output")
	}
	if s.Count() != 1 {
		t.Errorf("count: got %d, want 1", s.Count())
	}
}
