package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/mnemo/internal/security"
)

// method reports which configured credential r presents. Bearer is tried
// before basic; both comparisons are constant time.
func (a AuthConfig) method(r *http.Request) (string, bool) {
	if a.BearerToken != "" {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && same(token, a.BearerToken) {
			return "bearer", true
		}
	}
	if a.BasicUser != "" && a.BasicPass != "" {
		if user, pass, ok := r.BasicAuth(); ok && same(user, a.BasicUser) && same(pass, a.BasicPass) {
			return "basic", true
		}
	}
	return "", false
}

// authenticate guards the scope API with the credentials in effect for
// this request. Without credentials the API is open. Attempts are rate
// limited per remote host and every outcome goes to the audit log.
func (g *Gateway) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := g.currentAuth()
		if !cfg.IsConfigured() {
			next.ServeHTTP(w, r)
			return
		}
		if g.limiter != nil {
			if err := g.limiter.Allow(security.KindAuth, remoteHost(r)); err != nil {
				g.auditAuth(security.EventRateLimit, r, "auth attempts")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
		}
		if r.Header.Get("Authorization") == "" {
			g.auditAuth(security.EventAuthFailure, r, "missing authorization header")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		how, ok := cfg.method(r)
		if !ok {
			g.auditAuth(security.EventAuthFailure, r, "invalid credentials")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		g.auditAuth(security.EventAuthSuccess, r, how)
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) auditAuth(typ security.EventType, r *http.Request, detail string) {
	g.audit.Log(security.AuditEvent{
		Type:       typ,
		RemoteAddr: r.RemoteAddr,
		ScopeID:    chi.URLParam(r, "scope"),
		Detail:     detail,
		Metadata:   map[string]string{"method": r.Method, "path": r.URL.Path},
	})
}

// remoteHost is the request address without its port, so that every
// connection of one client shares a rate limit bucket.
func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func same(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
