package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// TokenAuth gates the API: same-origin callers pass freely, external callers
// must present the configured token as a Bearer credential or X-API-Token
// header. With no token configured, external callers are refused outright.
type TokenAuth struct {
	token  string
	logger *slog.Logger
}

func NewTokenAuth(token string, logger *slog.Logger) *TokenAuth {
	return &TokenAuth{token: token, logger: logger}
}

func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sameOrigin(r) {
			next.ServeHTTP(w, r)
			return
		}

		if a.token == "" {
			a.logger.Warn("external request refused, no API token configured",
				"path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "API token not configured")
			return
		}

		if provided := extractToken(r); provided != "" &&
			subtle.ConstantTimeCompare([]byte(provided), []byte(a.token)) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		a.logger.Warn("external request with invalid or missing token",
			"path", r.URL.Path, "origin", r.Header.Get("Origin"))
		writeError(w, http.StatusUnauthorized, "invalid or missing API token")
	})
}

// sameOrigin reports whether the Origin or Referer host matches the request
// host. Requests carrying neither header count as external.
func sameOrigin(r *http.Request) bool {
	for _, header := range []string{"Origin", "Referer"} {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil {
			continue
		}
		if u.Host == r.Host {
			return true
		}
	}
	return false
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Api-Token")
}
