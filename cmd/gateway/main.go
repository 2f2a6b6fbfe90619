package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chatguard/internal/config"
	"chatguard/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Reverse proxy with per-client fixed-window rate limiting",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config error: %v\n", err)
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("gateway stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional config file (yaml/json/toml); env vars take precedence")
	return cmd
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw, err := newGateway(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer gw.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("upstream", cfg.UpstreamURL))
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.Rate.Enabled),
		zap.String("algorithm", cfg.Rate.Algorithm),
		zap.Int("normal_limit", cfg.Rate.NormalLimit),
		zap.Int("sensitive_limit", cfg.Rate.SensitiveLimit),
		zap.Duration("window", cfg.Rate.Window),
		zap.Strings("sensitive_paths", cfg.Rate.SensitivePrefixes),
		zap.String("key_header", cfg.Rate.KeyHeader),
		zap.Bool("trust_xff", cfg.Rate.TrustXFF))
	logger.Info("rate stats",
		zap.Bool("redis", cfg.Stats.Enabled),
		zap.String("redis_addr", cfg.Stats.RedisAddr),
		zap.String("bucket", cfg.Stats.Bucket),
		zap.Duration("ttl", cfg.Stats.TTL),
		zap.Bool("track_keys", cfg.Stats.TrackKeys),
		zap.Bool("prometheus", cfg.Metrics.Enabled))
	logger.Info("concurrency",
		zap.Int("max", cfg.Concurrency.Max),
		zap.Duration("acquire_timeout", cfg.Concurrency.Timeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
