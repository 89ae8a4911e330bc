package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"epochvault/config"
	"epochvault/core/host"
	"epochvault/crypto"
	"epochvault/indexer"
	nativecommon "epochvault/native/common"
	"epochvault/observability/logging"
	telemetry "epochvault/observability/otel"
	"epochvault/rpc"
	"epochvault/storage"
)

const (
	genesisPathEnv = "VAULT_GENESIS"
	envNameEnv     = "VAULT_ENV"
	hubBuffer      = 256
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides VAULT_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	env := strings.TrimSpace(os.Getenv(envNameEnv))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("vaultd", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "vaultd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, *configFile, os.LookupEnv)
	n, err := openNode(cfg, genesisPath, logger)
	if err != nil {
		logger.Error("Failed to start node", slog.Any("error", err))
		os.Exit(1)
	}
	defer n.Close()

	logger.Info("vaultd ready",
		slog.Uint64("chain_id", cfg.ChainID),
		slog.String("vault", crypto.FormatAddress(n.host.VaultAddress())),
		slog.String("listen", cfg.RPC.ListenAddress),
		logging.MaskField("rpc_auth_token", cfg.RPC.AuthToken))

	if err := n.server.Start(ctx, cfg.RPC.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("vaultd stopped")
}

// node owns every long-lived component of the daemon.
type node struct {
	db     *storage.LevelDB
	host   *host.Host
	index  *indexer.Store
	hub    *rpc.Hub
	server *rpc.Server
}

// openNode opens the store, applies genesis on first start and wires the host
// to the archive, the event hub and the RPC server.
func openNode(cfg *config.Config, genesisPath string, logger *slog.Logger) (*node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	n := &node{db: db}

	n.host = host.New(db, host.Options{
		ChainID:   cfg.ChainID,
		VaultSeed: cfg.VaultSeed,
		Pauses:    nativecommon.NewPauseSet(cfg.Pauses.Modules()...),
		Logger:    logger,
	})
	if err := ensureGenesis(n.host, genesisPath); err != nil {
		n.Close()
		return nil, err
	}

	var archive rpc.Archive
	if cfg.Indexer.Enabled {
		store, err := indexer.Open(cfg.IndexPath())
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("open indexer: %w", err)
		}
		n.index = store
		n.host.SetArchive(store)
		archive = store
	}

	n.hub = rpc.NewHub(hubBuffer)
	n.host.SetEmitter(n.hub)
	n.server = rpc.NewServer(n.host, archive, n.hub, rpc.Config{
		AuthToken:          cfg.RPC.AuthToken,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		Logger:             logger,
	})
	return n, nil
}

func ensureGenesis(h *host.Host, path string) error {
	initialized, err := h.Initialized()
	if err != nil {
		return fmt.Errorf("read genesis marker: %w", err)
	}
	if initialized {
		return nil
	}
	if path == "" {
		return errors.New("store is empty and no genesis file is configured")
	}
	g, err := config.LoadGenesis(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	if err := h.ApplyGenesis(g); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	return nil
}

// Close releases the node's resources.
func (n *node) Close() {
	if n == nil {
		return
	}
	if n.hub != nil {
		n.hub.Close()
	}
	if n.index != nil {
		_ = n.index.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}

// resolveGenesisPath picks the flag, then the environment, then the config
// value. A relative config value is resolved against the config file's
// directory.
func resolveGenesisPath(flagValue, configValue, configFile string, lookup func(string) (string, bool)) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if lookup != nil {
		if v, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	v := strings.TrimSpace(configValue)
	if v == "" || filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(filepath.Dir(configFile), v)
}
