package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate rejects configurations the node cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be non-zero")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, _, err := net.SplitHostPort(cfg.RPC.ListenAddress); err != nil {
		return fmt.Errorf("config: RPC.ListenAddress: %w", err)
	}
	if cfg.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("config: RPC.RateLimitPerSecond must not be negative")
	}
	if cfg.RPC.RateLimitPerSecond > 0 && cfg.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RPC.RateLimitBurst must be positive when rate limiting")
	}
	if cfg.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("config: RPC.MaxBodyBytes must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown Log.Level %q", cfg.Log.Level)
	}
	return nil
}
