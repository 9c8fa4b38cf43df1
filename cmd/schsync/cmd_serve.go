package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"schsync/internal/app"
	"schsync/internal/artifact"
	"schsync/internal/auth"
	"schsync/internal/bridge"
	"schsync/internal/config"
	"schsync/internal/journal"
	"schsync/internal/logger"
	"schsync/internal/metrics"
	"schsync/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the CAD host bridge",
	Long: `Starts the HTTP API and the WebSocket bridge the CAD extension connects to.

Configuration comes from the YAML file named by SCHSYNC_CONFIG, overridden by
SCHSYNC_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log, err := logger.New(os.Stderr, cfg.LogFormat, level)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx := cmd.Context()

	kv, closeKV, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeKV()

	m := metrics.New()
	bridgeServer := bridge.NewServer(
		bridge.WithTimeout(cfg.BridgeTimeout),
		bridge.WithMetrics(m),
		bridge.WithLogger(log.With("component", "bridge")),
	)
	defer bridgeServer.Close()

	var hostOpts []bridge.HostOption
	if cfg.NetlistDir != "" {
		dir, err := filepath.Abs(cfg.NetlistDir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create netlist dir: %w", err)
		}
		hostOpts = append(hostOpts, bridge.WithExportDir(dir))
	}

	deps := app.Deps{
		Host:      bridge.NewHost(bridgeServer, hostOpts...),
		KV:        kv,
		StoreName: cfg.Store,
		Bridge:    bridgeServer,
		Metrics:   m,
		Log:       log,
	}
	if cfg.JournalDir != "" {
		if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
		deps.Journal = journal.New(cfg.JournalDir)
	}
	if cfg.MinioEndpoint != "" {
		artifacts, err := artifact.New(artifact.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		if err := artifacts.EnsureBucket(ctx); err != nil {
			return err
		}
		deps.Artifacts = artifacts
	}

	tokens, err := auth.NewTokens(cfg.HTTPToken, cfg.HTTPTokenBcrypt)
	if err != nil {
		return err
	}
	if cfg.HTTPToken != "" {
		log.Info("bearer token required", "fingerprint", auth.Fingerprint(cfg.HTTPToken))
	} else if tokens.Enabled() {
		log.Info("bearer token required", "hashed", true)
	}

	service := app.New(deps)
	api := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, tokens, m.Handler(), log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.BridgeTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ws := &http.Server{
		Addr:              cfg.BridgeAddr,
		Handler:           bridgeServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{api, ws} {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}
	log.Info("schsync listening", "addr", cfg.Addr, "bridge", cfg.BridgeAddr, "store", cfg.Store, "journal", cfg.JournalDir != "")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{api, ws} {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Warn("shutdown error", "addr", srv.Addr, "error", serr)
		}
	}
	return err
}

// openStore connects the configured mapping store. The returned func
// releases it.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.KV, func(), error) {
	switch cfg.Store {
	case "redis":
		kv, err := store.NewRedisKV(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := kv.Ping(ctx); err != nil {
			log.Warn("redis not reachable yet", "error", err)
		}
		return kv, func() { _ = kv.Close() }, nil
	case "postgres":
		kv, err := store.OpenPostgres(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { _ = kv.DB().Close() }, nil
	default:
		log.Warn("using the in-memory mapping store; mappings are lost on restart")
		return store.NewMemoryKV(), func() {}, nil
	}
}
