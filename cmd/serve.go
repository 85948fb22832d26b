package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentd/internal/config"
	"github.com/nextlevelbuilder/agentd/internal/filestore"
	"github.com/nextlevelbuilder/agentd/internal/gateway"
	"github.com/nextlevelbuilder/agentd/internal/store"
	"github.com/nextlevelbuilder/agentd/internal/store/pg"
	"github.com/nextlevelbuilder/agentd/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket session orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := newLogger(os.Stderr)

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	cfg.WorkspaceRoot = config.ExpandHome(cfg.WorkspaceRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	snapshots, err := openFileStore(cfg)
	if err != nil {
		return err
	}

	// Model registry changes apply without a restart.
	go func() {
		if err := config.Watch(ctx, cfgPath, cfg, logger); err != nil {
			logger.Warn("config.watch_failed", "error", err)
		}
	}()

	logger.Info("agentd.starting", "version", Version, "database", cfg.Database.Kind, "sandbox", cfg.Sandbox.Mode)
	return gateway.NewServer(cfg, db, snapshots, logger).Start(ctx)
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.Kind == "postgres" {
		if cfg.Database.PostgresDSN == "" {
			return nil, fmt.Errorf("database kind is postgres but AGENTD_POSTGRES_DSN is not set")
		}
		return pg.Open(cfg.Database.PostgresDSN)
	}
	path := config.ExpandHome(cfg.Database.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return store.OpenSQLite(path)
}

func openFileStore(cfg *config.Config) (filestore.Store, error) {
	if cfg.FileStore.Kind == "memory" {
		return filestore.NewMemory(), nil
	}
	return filestore.NewLocal(config.ExpandHome(cfg.FileStore.Root))
}
