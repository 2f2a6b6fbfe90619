package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatguard/middleware/ratelimit/application"
	"chatguard/middleware/ratelimit/domain"
)

type Options struct {
	Limiter             domain.Limiter
	Policy              domain.Policy
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	ClassifyFn          ClassifyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	SensitivePrefixes   []string
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Logger              *zap.Logger

	// Clock marca o horário dos eventos de stats. O Retry-After usa o
	// relógio do próprio limiter.
	Clock domain.Clock
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.Policy == (domain.Policy{}) {
		opts.Policy = domain.DefaultPolicy()
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.ClassifyFn == nil {
		prefixes := opts.SensitivePrefixes
		if len(prefixes) == 0 {
			prefixes = DefaultSensitivePrefixes
		}
		opts.ClassifyFn = PathPrefixClassifier(prefixes)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := application.Service{
		Limiter:    opts.Limiter,
		Policy:     opts.Policy,
		RetryAfter: opts.RetryAfter,
	}

	// rejeição é política, não falha: loga em info e com amostragem
	denyLog := &rate.Sometimes{First: 10, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := opts.KeyFn(r)
			class := opts.ClassifyFn(r)

			dec := svc.Decide(client, class)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", string(dec.Key))
				w.Header().Set("X-RateLimit-Class", string(class))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
				w.Header().Set("X-RateLimit-Window", strconv.Itoa(int(opts.Policy.Window.Seconds())))
			}

			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     dec.Key,
					Class:   class,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      opts.Clock(),
				})
				if err != nil {
					logger.Debug("rate limit stats record failed", zap.Error(err))
				}
			}

			if !dec.Allowed {
				denyLog.Do(func() {
					logger.Info("rate limit exceeded",
						zap.String("key", string(dec.Key)),
						zap.String("class", string(class)),
						zap.Int("limit", dec.Limit),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Duration("retry_after", dec.RetryAfter))
				})
				w.Header().Set("Retry-After", strconv.Itoa(int(dec.RetryAfter.Seconds())))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
