// Package secure adiciona headers básicos de segurança às respostas.
package secure

import "net/http"

var static = [][2]string{
	{"X-XSS-Protection", "1; mode=block"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
}

// Headers aplica proteção contra XSS, MIME sniffing e clickjacking e
// substitui o header Server. server vazio remove a identificação.
//
// Atrás de um httputil.ReverseProxy use também StripUpstream, senão os
// valores do upstream são somados aos daqui.
func Headers(server string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range static {
				h.Set(kv[0], kv[1])
			}
			if server != "" {
				h.Set("Server", server)
			} else {
				h.Del("Server")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StripUpstream remove da resposta do upstream os headers controlados por
// Headers. Feito para httputil.ReverseProxy.ModifyResponse.
func StripUpstream(resp *http.Response) error {
	for _, kv := range static {
		resp.Header.Del(kv[0])
	}
	resp.Header.Del("Server")
	return nil
}
