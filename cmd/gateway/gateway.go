package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatguard/internal/config"
	"chatguard/middleware/observe"
	"chatguard/middleware/ratelimit"
	"chatguard/middleware/ratelimit/domain"
	"chatguard/middleware/ratelimit/infra"
	"chatguard/middleware/secure"
)

// gateway junta proxy, limiter, stats e rotas administrativas.
type gateway struct {
	handler http.Handler
	limiter domain.Limiter
	stats   *infra.MemoryStatsStore
	closers []func() error
}

func (g *gateway) Handler() http.Handler { return g.handler }

func (g *gateway) Close() {
	for _, c := range g.closers {
		_ = c()
	}
}

func newLimiter(ctx context.Context, rc config.RateConfig, logger *zap.Logger) domain.Limiter {
	if rc.Algorithm == config.AlgorithmTokenBucket {
		opts := []infra.TokenBucketOption{infra.WithCleanupEvery(rc.CleanupEvery)}
		if rc.IdleTTL > 0 {
			opts = append(opts, infra.WithIdleTTL(rc.IdleTTL))
		}
		tb := infra.NewTokenBucket(rc.Window, opts...)
		tb.StartJanitor(ctx)
		logger.Info("token bucket limiter",
			zap.Duration("window", tb.Window()),
			zap.Duration("idle_ttl", tb.IdleTTL()),
			zap.Duration("cleanup_every", tb.CleanupEvery()))
		return tb
	}
	return infra.NewFixedWindow(rc.Window)
}

func newGateway(ctx context.Context, cfg config.Config, logger *zap.Logger, reg *prometheus.Registry) (*gateway, error) {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	// Server e headers de segurança vêm só do gateway
	proxy.ModifyResponse = secure.StripUpstream

	gw := &gateway{
		limiter: newLimiter(ctx, cfg.Rate, logger),
		stats:   infra.NewMemoryStatsStore(),
	}
	sinks := infra.MultiStats{gw.stats}
	var shared ratelimit.SharedTotals

	if cfg.Metrics.Enabled && reg != nil {
		ps, err := infra.NewPrometheusStatsStore(reg)
		if err != nil {
			return nil, fmt.Errorf("register rate limit metrics: %w", err)
		}
		sinks = append(sinks, ps)
	}

	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		gw.closers = append(gw.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			gw.Close()
			return nil, fmt.Errorf("redis stats ping: %w", err)
		}

		rs := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
		sinks = append(sinks, rs)
		shared = rs
	}

	upstream := http.Handler(proxy)
	upstream = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.Timeout,
		Logger:         logger,
	})(upstream)
	if cfg.Rate.Enabled {
		upstream = ratelimit.Middleware(ratelimit.Options{
			Limiter: gw.limiter,
			Policy: domain.Policy{
				NormalLimit:    cfg.Rate.NormalLimit,
				SensitiveLimit: cfg.Rate.SensitiveLimit,
				Window:         cfg.Rate.Window,
			},
			Stats:               sinks,
			KeyHeader:           cfg.Rate.KeyHeader,
			TrustXForwardedFor:  cfg.Rate.TrustXFF,
			SensitivePrefixes:   cfg.Rate.SensitivePrefixes,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.Rate.RetryAfter,
			AddRateLimitHeaders: cfg.Rate.AddHeaders,
			Logger:              logger,
		})(upstream)
	}

	r := chi.NewRouter()
	r.Use(observe.Correlation)
	r.Use(observe.AccessLog(logger, observe.DefaultSlowThreshold,
		observe.WithClientIP(observe.ClientIPFunc(ratelimit.DefaultKeyFunc("", cfg.Rate.TrustXFF)))))
	r.Use(secure.Headers(cfg.ServerHeader))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Metrics.Enabled && reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if cfg.AdminToken != "" {
		r.Route("/admin/ratelimit", func(r chi.Router) {
			r.Use(ratelimit.RequireBearer(cfg.AdminToken))
			r.Post("/reset", ratelimit.ResetHandler(gw.limiter, logger))
			r.Get("/inspect", ratelimit.InspectHandler(gw.limiter))
			r.Get("/stats", ratelimit.StatsHandler(gw.stats, shared))
		})
	} else {
		logger.Debug("admin endpoints disabled (ADMIN_TOKEN not set)")
	}
	r.Handle("/*", upstream)

	gw.handler = r
	return gw, nil
}
