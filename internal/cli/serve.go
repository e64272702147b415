package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ganesh7742/ShareTheCode/internal/config"
	"github.com/Ganesh7742/ShareTheCode/internal/httpapi"
	"github.com/Ganesh7742/ShareTheCode/internal/hub"
	"github.com/Ganesh7742/ShareTheCode/internal/session"
	"github.com/Ganesh7742/ShareTheCode/internal/snapshot"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the collaboration server",
		Long: `Start the ShareTheCode server.

Clients connect over /ws for live document broadcasting; snapshots are
managed over /snapshot and viewable at /s/{id}. The snapshot backend,
listen address and feature toggles come from the config file and
environment (DATABASE_URL, REDIS_ADDR, SHARETHECODE_*).

Example:
  sharethecode serve
  sharethecode serve --config ./sharethecode.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}
}

func runServe(opts *RootOptions) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("snapshot store ready", "backend", cfg.Store)

	var bridge *hub.Bridge
	if cfg.RedisAddr != "" {
		bridge, err = hub.NewBridge(ctx, cfg.RedisAddr, "sharethecode:broadcast", logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer bridge.Close()
		logger.Info("redis bridge ready", "addr", cfg.RedisAddr)
	}

	doc := session.New(cfg.MaxDocumentLen)
	h := hub.New(hub.Options{
		BaseURL:       cfg.BaseURL,
		ClearOnSave:   cfg.ClearOnSave,
		AppendUpdates: cfg.AppendUpdates,
		ChatEnabled:   cfg.ChatEnabled,
		ChatHistory:   cfg.ChatHistory,
		WriteTimeout:  cfg.WriteTimeout,
		Logger:        logger,
	}, doc, store, bridge)
	go h.Run(ctx)

	api := httpapi.NewServer(h, cfg.BaseURL, logger)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "base_url", cfg.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (snapshot.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return snapshot.NewMemoryStore(cfg.MaxSnapshots), nil
	case config.StoreSQLite:
		return snapshot.OpenSQLite(cfg.SQLitePath, cfg.MaxSnapshots)
	case config.StorePostgres:
		return snapshot.OpenPostgres(ctx, cfg.DatabaseURL, cfg.MaxSnapshots)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
