// Package observe fornece correlation ID e log de acesso por requisição.
package observe

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const CorrelationHeader = "X-Correlation-ID"

type correlationKey struct{}

// Correlation reaproveita o X-Correlation-ID recebido ou gera um UUID novo,
// devolve o valor no response e o guarda no contexto.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(CorrelationHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		r.Header.Set(CorrelationHeader, id)

		ctx := context.WithValue(r.Context(), correlationKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationID devolve o ID guardado por Correlation ("" se ausente).
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
