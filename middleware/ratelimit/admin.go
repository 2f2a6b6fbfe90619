package ratelimit

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chatguard/middleware/ratelimit/domain"
	"chatguard/middleware/ratelimit/infra"
)

// RequireBearer protege endpoints administrativos. Token vazio desliga a checagem.
func RequireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ResetHandler limpa todos os contadores do limiter (POST).
func ResetHandler(lim domain.Limiter, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		if lim != nil {
			lim.Reset()
		}
		logger.Info("rate limit counters reset", zap.String("remote", RemoteHost(r.RemoteAddr)))
		w.WriteHeader(http.StatusNoContent)
	}
}

// InspectHandler devolve o estado da janela de ?key=... em JSON.
// Com ?client=...&class=... a chave é montada como no middleware.
func InspectHandler(lim domain.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insp, ok := lim.(domain.WindowInspector)
		if !ok {
			http.Error(w, "limiter does not expose window state", http.StatusNotImplemented)
			return
		}

		q := r.URL.Query()
		key := domain.Key(q.Get("key"))
		if key == "" && q.Get("client") != "" {
			key = domain.ComposeKey(q.Get("client"), domain.Class(q.Get("class")))
		}
		if key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}

		st, found := insp.Peek(key)
		if !found {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"key":            st.Key,
			"count":          st.Count,
			"window_start":   st.WindowStart,
			"window_seconds": int(insp.Window().Seconds()),
			"tracked_keys":   insp.Len(),
		})
	}
}

// SharedTotals lê totais agregados entre instâncias (ex.: RedisStatsStore).
type SharedTotals interface {
	Total(ctx context.Context) (infra.Counters, error)
}

// StatsHandler expõe os contadores do MemoryStatsStore. Com shared não nil,
// inclui também o total compartilhado; falha na leitura não derruba a resposta.
func StatsHandler(stats *infra.MemoryStatsStore, shared SharedTotals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stats == nil {
			http.Error(w, "stats disabled", http.StatusNotFound)
			return
		}
		body := map[string]any{
			"total":    stats.Total(),
			"by_class": stats.ByClass(),
			"by_route": stats.ByRoute(),
		}
		if shared != nil {
			if c, err := shared.Total(r.Context()); err != nil {
				body["shared_error"] = err.Error()
			} else {
				body["shared_total"] = c
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
