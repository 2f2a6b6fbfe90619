package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extrai o identificador do cliente (sem a classe do endpoint).
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc identifica o cliente nesta ordem: header configurado,
// X-Forwarded-For / X-Real-IP (somente se confiáveis) e por fim RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustProxyHeaders bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustProxyHeaders {
			if ip := ClientIPFromHeaders(r.Header); ip != "" {
				return ip
			}
		}

		return RemoteHost(r.RemoteAddr)
	}
}

// ClientIPFromHeaders devolve o IP original informado por um proxy:
// o primeiro item de X-Forwarded-For, senão X-Real-IP.
func ClientIPFromHeaders(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(h.Get("X-Real-IP"))
}

// RemoteHost remove a porta de RemoteAddr; "unknown" se vazio.
func RemoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "unknown"
}
