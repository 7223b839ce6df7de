// Command cloakchain runs the MEV-protection core: the keyper registry, the
// encrypted mempool, the ordering attestation book and the forced-inclusion
// queue, wired around one event feed.
//
// Usage:
//
//	cloakchain [flags]
//
// Flags:
//
//	--owner       Registry owner address (required)
//	--sequencers  Comma-separated authorized sequencer addresses
//	--threshold   DKG decryption threshold (default: 3)
//	--maxkeypers  Active keyper limit (default: 200)
//	--minstake    Minimum keyper stake in wei (default: 1e18)
//	--expiry      Mempool expiry window in blocks (default: 256)
//	--minbond     Minimum forced-inclusion bond in wei (default: 0.1e18)
//	--deadline    Forced-inclusion deadline in blocks (default: 7200)
//	--fee         Execution fee recipient address
//	--verbosity   Log level 0-5 (default: 3)
//	--version     Print version and exit
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloakchain/cloakchain/log"
	"github.com/cloakchain/cloakchain/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	n, err := node.New(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create node: %v\n", err)
		return 1
	}

	log.Info("cloakchain starting", "version", version, "commit", commit,
		"owner", cfg.Owner, "threshold", cfg.Threshold, "expiry", cfg.ExpiryBlocks)

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start node: %v\n", err)
		return 1
	}

	// Wait for SIGINT or SIGTERM to initiate graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	if err := n.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		return 1
	}
	return 0
}

// parseFlags parses CLI arguments into a Config. Returns the config, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (node.Config, bool, int) {
	cfg := node.DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("cloakchain %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// Config. The FlagSet uses ContinueOnError so callers control the error
// handling behavior.
func newFlagSet(cfg *node.Config) *flagSet {
	fs := newCustomFlagSet("cloakchain")
	fs.StringVar(&cfg.Owner, "owner", cfg.Owner, "registry owner address")
	fs.StringVar(&cfg.Sequencers, "sequencers", cfg.Sequencers, "comma-separated authorized sequencer addresses")
	fs.IntVar(&cfg.Threshold, "threshold", cfg.Threshold, "dkg decryption threshold")
	fs.IntVar(&cfg.MaxKeypers, "maxkeypers", cfg.MaxKeypers, "active keyper limit")
	fs.Uint64Var(&cfg.MinStakeWei, "minstake", cfg.MinStakeWei, "minimum keyper stake in wei")
	fs.Uint64Var(&cfg.ExpiryBlocks, "expiry", cfg.ExpiryBlocks, "mempool expiry window in blocks")
	fs.Uint64Var(&cfg.MinBondWei, "minbond", cfg.MinBondWei, "minimum forced-inclusion bond in wei")
	fs.Uint64Var(&cfg.DeadlineBlocks, "deadline", cfg.DeadlineBlocks, "forced-inclusion deadline in blocks")
	fs.StringVar(&cfg.FeeRecipient, "fee", cfg.FeeRecipient, "execution fee recipient address")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0=silent, 5=trace)")
	return fs
}
