package ratelimit

import (
	"net/http"
	"strings"

	"chatguard/middleware/ratelimit/domain"
)

// ClassifyFunc decide a classe do endpoint (e portanto o limite) da requisição.
type ClassifyFunc func(r *http.Request) domain.Class

// DefaultSensitivePrefixes cobre os endpoints de autenticação (login/cadastro).
var DefaultSensitivePrefixes = []string{"/auth/"}

// PathPrefixClassifier marca como sensível qualquer path sob um dos prefixos.
// "/auth/" casa também com "/auth" exatamente.
func PathPrefixClassifier(prefixes []string) ClassifyFunc {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}

	return func(r *http.Request) domain.Class {
		path := r.URL.Path
		for _, p := range clean {
			if strings.HasPrefix(path, p) || path == strings.TrimSuffix(p, "/") {
				return domain.ClassSensitive
			}
		}
		return domain.ClassNormal
	}
}
