package observe

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultSlowThreshold marca requisições lentas.
const DefaultSlowThreshold = 5 * time.Second

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// ClientIPFunc resolve o IP do cliente para o log.
type ClientIPFunc func(r *http.Request) string

type AccessLogOption func(*accessLogOptions)

type accessLogOptions struct {
	clientIP ClientIPFunc
}

// WithClientIP troca a resolução padrão (host de RemoteAddr), por exemplo
// para ler X-Forwarded-For atrás de um proxy confiável.
func WithClientIP(fn ClientIPFunc) AccessLogOption {
	return func(o *accessLogOptions) {
		if fn != nil {
			o.clientIP = fn
		}
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// AccessLog registra uma linha por requisição: error para 5xx, warn para 4xx
// e info para o resto. Requisições acima de slow geram um warn extra.
func AccessLog(logger *zap.Logger, slow time.Duration, opts ...AccessLogOption) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	o := accessLogOptions{clientIP: remoteHost}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
				zap.Int64("bytes", rec.bytes),
				zap.String("client_ip", o.clientIP(r)),
				zap.String("user_agent", r.UserAgent()),
				zap.String("correlation_id", CorrelationID(r.Context())),
			}
			if r.Header.Get("Authorization") != "" {
				fields = append(fields, zap.String("authorization", "[REDACTED]"))
			}

			switch {
			case status >= 500:
				logger.Error("request completed with server error", fields...)
			case status >= 400:
				logger.Warn("request completed with client error", fields...)
			default:
				logger.Info("request completed", fields...)
			}

			if elapsed > slow {
				logger.Warn("slow request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("duration", elapsed))
			}
		})
	}
}
