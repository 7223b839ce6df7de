// Package node wires the MEV-protection subsystems into one process: the
// keyper registry, the encrypted mempool, the ordering book and the
// forced-inclusion queue, sharing one event feed and one sequencer set.
package node

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config holds all configuration for a cloakchain node.
type Config struct {
	// Name is a human-readable node identifier (used in logs).
	Name string

	// Owner is the hex address holding registry admin rights (slashing,
	// DKG control, key revocation).
	Owner string

	// Sequencers is a comma-separated list of hex addresses authorized to
	// commit orderings.
	Sequencers string

	// Threshold is the DKG decryption threshold.
	Threshold int

	// MaxKeypers caps the active keyper set.
	MaxKeypers int

	// MinStakeWei is the minimum keyper stake.
	MinStakeWei uint64

	// ExpiryBlocks is the mempool expiry window.
	ExpiryBlocks uint64

	// MinBondWei is the minimum forced-inclusion bond.
	MinBondWei uint64

	// DeadlineBlocks is the forced-inclusion resolution window.
	DeadlineBlocks uint64

	// FeeRecipient is the hex address collecting consumed execution fees.
	FeeRecipient string

	// EventBuffer is the per-subscription event channel depth.
	EventBuffer int

	// Verbosity controls log level 0-5 (0=silent, 5=trace).
	Verbosity int
}

// DefaultConfig returns a Config with protocol defaults.
func DefaultConfig() Config {
	return Config{
		Name:           "cloakchain",
		Threshold:      3,
		MaxKeypers:     200,
		MinStakeWei:    1_000_000_000_000_000_000,
		ExpiryBlocks:   256,
		MinBondWei:     100_000_000_000_000_000,
		DeadlineBlocks: 7200,
		EventBuffer:    256,
		Verbosity:      3,
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: name must not be empty")
	}
	if !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("config: invalid owner address %q", c.Owner)
	}
	if c.FeeRecipient != "" && !common.IsHexAddress(c.FeeRecipient) {
		return fmt.Errorf("config: invalid fee recipient %q", c.FeeRecipient)
	}
	if _, err := c.sequencerAddrs(); err != nil {
		return err
	}
	if c.Threshold < 1 {
		return fmt.Errorf("config: invalid threshold %d", c.Threshold)
	}
	if c.MaxKeypers < c.Threshold {
		return fmt.Errorf("config: max keypers %d below threshold %d", c.MaxKeypers, c.Threshold)
	}
	if c.ExpiryBlocks == 0 {
		return errors.New("config: expiry window must be > 0")
	}
	if c.DeadlineBlocks == 0 {
		return errors.New("config: inclusion deadline must be > 0")
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("config: invalid verbosity %d", c.Verbosity)
	}
	return nil
}

// sequencerAddrs parses the comma-separated sequencer list.
func (c *Config) sequencerAddrs() ([]common.Address, error) {
	if strings.TrimSpace(c.Sequencers) == "" {
		return nil, nil
	}
	parts := strings.Split(c.Sequencers, ",")
	addrs := make([]common.Address, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !common.IsHexAddress(p) {
			return nil, fmt.Errorf("config: invalid sequencer address %q", p)
		}
		addrs = append(addrs, common.HexToAddress(p))
	}
	return addrs, nil
}

// minStake returns the configured minimum stake as a uint256.
func (c *Config) minStake() *uint256.Int {
	return uint256.NewInt(c.MinStakeWei)
}

// minBond returns the configured minimum bond as a uint256.
func (c *Config) minBond() *uint256.Int {
	return uint256.NewInt(c.MinBondWei)
}

// VerbosityToLogLevel maps the 0-5 verbosity scale onto slog levels.
func VerbosityToLogLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError + 4
	case v == 1:
		return slog.LevelError
	case v == 2:
		return slog.LevelWarn
	case v == 3:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
