package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/mnemo/internal/security"
	"github.com/flemzord/mnemo/internal/security/securitytest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func guarded(g *Gateway) http.Handler { return g.authenticate(okHandler()) }

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	bearer := func(tok string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
	}
	basic := func(u, p string) func(*http.Request) {
		return func(r *http.Request) { r.SetBasicAuth(u, p) }
	}
	both := AuthConfig{BearerToken: "my-token", BasicUser: "admin", BasicPass: "pass123"}

	tests := []struct {
		name string
		cfg  AuthConfig
		set  func(*http.Request)
		want int
	}{
		{"open without credentials", AuthConfig{}, nil, http.StatusOK},
		{"half basic config stays open", AuthConfig{BasicUser: "admin"}, nil, http.StatusOK},
		{"bearer ok", both, bearer("my-token"), http.StatusOK},
		{"bearer wrong", both, bearer("nope"), http.StatusUnauthorized},
		{"basic ok", both, basic("admin", "pass123"), http.StatusOK},
		{"basic wrong password", both, basic("admin", "x"), http.StatusUnauthorized},
		{"basic when only bearer set", AuthConfig{BearerToken: "my-token"}, basic("admin", "pass123"), http.StatusUnauthorized},
		{"missing header", both, nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{config: Config{Auth: tt.cfg}}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/scopes/aria/retrieve", nil)
			if tt.set != nil {
				tt.set(req)
			}
			rr := httptest.NewRecorder()
			guarded(g).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAuthenticate_ReloadedCredentials(t *testing.T) {
	t.Parallel()

	g := &Gateway{config: Config{Auth: AuthConfig{BearerToken: "old"}}}
	do := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		guarded(g).ServeHTTP(rr, req)
		return rr.Code
	}

	if code := do("old"); code != http.StatusOK {
		t.Fatalf("old token before reload = %d", code)
	}
	g.auth.Store(&AuthConfig{BearerToken: "new"})
	if code := do("old"); code != http.StatusUnauthorized {
		t.Errorf("old token after reload = %d, want 401", code)
	}
	if code := do("new"); code != http.StatusOK {
		t.Errorf("new token after reload = %d, want 200", code)
	}
}

func TestAuthConfig_IsConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg  AuthConfig
		want bool
	}{
		{AuthConfig{}, false},
		{AuthConfig{BearerToken: "tok"}, true},
		{AuthConfig{BasicUser: "u", BasicPass: "p"}, true},
		{AuthConfig{BasicUser: "u"}, false},
		{AuthConfig{BasicPass: "p"}, false},
	}
	for _, tt := range tests {
		if got := tt.cfg.IsConfigured(); got != tt.want {
			t.Errorf("%+v.IsConfigured() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestAuthenticate_AuditEvents(t *testing.T) {
	t.Parallel()

	audit, events := securitytest.NewTestAuditLogger()
	g := &Gateway{config: Config{Auth: AuthConfig{BearerToken: "tok"}}, audit: audit}

	for _, token := range []string{"tok", "nope"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		guarded(g).ServeHTTP(httptest.NewRecorder(), req)
	}

	got := events()
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Type != security.EventAuthSuccess || got[0].Detail != "bearer" {
		t.Errorf("first event = %s %q", got[0].Type, got[0].Detail)
	}
	if got[1].Type != security.EventAuthFailure || got[1].RemoteAddr == "" {
		t.Errorf("second event = %s from %q", got[1].Type, got[1].RemoteAddr)
	}
}

func TestAuthenticate_RateLimitsPerHost(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		config:  Config{Auth: AuthConfig{BearerToken: "tok"}},
		limiter: security.NewRateLimiter(security.RateLimitConfig{AuthPerMin: 2}),
	}
	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req.Header.Set("Authorization", "Bearer wrong")
		rr := httptest.NewRecorder()
		guarded(g).ServeHTTP(rr, req)
		return rr.Code
	}

	// Ports of one host share a bucket.
	tests := []struct {
		remote string
		want   int
	}{
		{"10.0.0.1:1000", http.StatusUnauthorized},
		{"10.0.0.1:1001", http.StatusUnauthorized},
		{"10.0.0.1:1002", http.StatusTooManyRequests},
		{"10.0.0.2:1000", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		if code := do(tt.remote); code != tt.want {
			t.Errorf("%s = %d, want %d", tt.remote, code, tt.want)
		}
	}
}
