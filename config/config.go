package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the vaultd node configuration.
type Config struct {
	ChainID     uint64          `toml:"ChainID"`
	Environment string          `toml:"Environment"`
	DataDir     string          `toml:"DataDir"`
	GenesisFile string          `toml:"GenesisFile"`
	VaultSeed   string          `toml:"VaultSeed"`
	RPC         RPCConfig       `toml:"RPC"`
	Log         LogConfig       `toml:"Log"`
	Telemetry   TelemetryConfig `toml:"Telemetry"`
	Indexer     IndexerConfig   `toml:"Indexer"`
	Pauses      Pauses          `toml:"Pauses"`
}

type RPCConfig struct {
	ListenAddress string `toml:"ListenAddress"`
	// AuthToken, when set, is required as a bearer token on invoke calls.
	AuthToken          string  `toml:"AuthToken"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	MaxBodyBytes       int64   `toml:"MaxBodyBytes"`
}

type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// IndexerConfig controls the SQLite event archive. An empty Path places the
// database under DataDir.
type IndexerConfig struct {
	Enabled bool   `toml:"Enabled"`
	Path    string `toml:"Path"`
}

// Pauses lists modules whose mutating operations are rejected.
type Pauses struct {
	Vault bool `toml:"Vault"`
	Token bool `toml:"Token"`
}

// Modules returns the paused module names.
func (p Pauses) Modules() []string {
	var out []string
	if p.Vault {
		out = append(out, "vault")
	}
	if p.Token {
		out = append(out, "token")
	}
	return out
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		ChainID:     1,
		Environment: "local",
		DataDir:     "./vault-data",
		GenesisFile: "genesis.yaml",
		VaultSeed:   "vault",
		RPC: RPCConfig{
			ListenAddress:      "127.0.0.1:8090",
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			MaxBodyBytes:       1 << 20,
		},
		Log:     LogConfig{Level: "info", MaxSizeMB: 100, MaxAgeDays: 14},
		Indexer: IndexerConfig{Enabled: true},
	}
}

// Load loads the configuration from the given path, writing the default
// configuration there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.VaultSeed = strings.TrimSpace(cfg.VaultSeed)
	if cfg.VaultSeed == "" {
		cfg.VaultSeed = "vault"
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IndexPath resolves the event archive location.
func (c *Config) IndexPath() string {
	if p := strings.TrimSpace(c.Indexer.Path); p != "" {
		return p
	}
	return filepath.Join(c.DataDir, "events.db")
}

// StatePath resolves the LevelDB directory.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
