package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chatguard/internal/logging"
	"chatguard/middleware/observe"
	"chatguard/middleware/ratelimit"
	"chatguard/middleware/ratelimit/domain"
	"chatguard/middleware/ratelimit/infra"
	"chatguard/middleware/secure"
)

// Exemplo: o middleware embutido direto numa API de chat (sem proxy).
func main() {
	var addr, logLevel string

	cmd := &cobra.Command{
		Use:          "example-server",
		Short:        "Chat API demo with the rate limit middleware embedded",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, addr, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", envOr("LISTEN_ADDR", ":8081"), "listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "debug"), "log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func newRouter(lim domain.Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Correlation)
	r.Use(observe.AccessLog(logger, 0))
	r.Use(secure.Headers("chatguard-example"))
	// servidor exposto direto: chave pelo IP da conexão. KeyHeader e
	// TrustXForwardedFor só fazem sentido atrás de um proxy confiável,
	// senão o cliente troca o header e ganha um contador novo.
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Limiter:             lim,
		Policy:              domain.DefaultPolicy(),
		AddRateLimitHeaders: true,
		Logger:              logger,
	}))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signin", reply("token", "demo-token"))
		r.Post("/signup", reply("status", "created"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/chats", reply("chats", []string{}))
		r.Get("/messages/chat/{chatID}", func(w http.ResponseWriter, r *http.Request) {
			reply("chat_id", chi.URLParam(r, "chatID"))(w, r)
		})
	})
	return r
}

func reply(field string, value any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{field: value})
	}
}

func serve(ctx context.Context, addr string, logger *zap.Logger) error {
	lim := infra.NewFixedWindow(domain.DefaultPolicy().Window)

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(lim, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
