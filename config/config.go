// Package config loads the TOML settings file shared by the client, server
// and settlement commands.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the on-disk configuration. Command line flags take precedence
// over file values.
type Config struct {
	// Endpoint is the ledger JSON-RPC URL.
	Endpoint string `toml:"endpoint"`
	// HeadsUpContract is the table contract address.
	HeadsUpContract string `toml:"headsup_contract"`
	// PokerContract is the transition-predicate contract address.
	PokerContract string `toml:"poker_contract"`
	GasLimit      uint64 `toml:"gas_limit"`

	// Default table terms offered by the server.
	Duration        uint64 `toml:"duration"`
	JoinDuration    uint64 `toml:"join_duration"`
	DisputeDuration uint64 `toml:"dispute_duration"`

	// GameDir holds the per-session backup files.
	GameDir string `toml:"game_dir"`
	// PollSeconds is the settlement monitor cadence.
	PollSeconds uint64 `toml:"poll_seconds"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		HeadsUpContract: "0x5fB5EDF7255e8CF168a41AD67472a76bb8304acb",
		PokerContract:   "0x34cC3183bff750Fb6b2fafA0fcdEFEfb6764873B",
		GasLimit:        3000000,
		Duration:        3600,
		JoinDuration:    600,
		DisputeDuration: 900,
		GameDir:         "gamestate",
		PollSeconds:     10,
	}
}

// Load reads path over the defaults. A missing file is not an error; a
// present but unreadable or unparsable one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "config: read")
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", filepath.Base(path))
	}
	return cfg, nil
}

// Poll converts the configured cadence to a duration.
func (c Config) Poll() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}
