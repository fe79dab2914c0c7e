package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name         string
		origin       string
		allowedHosts []string
		want         bool
	}{
		{"bare host allows any port", "https://app.ledgerline.io:4443", []string{"app.ledgerline.io"}, true},
		{"pinned port matches", "http://localhost:5173", []string{"localhost:5173"}, true},
		{"pinned port rejects other port", "http://localhost:3000", []string{"localhost:5173"}, false},
		{"case and padding ignored", "HTTPS://App.Ledgerline.IO", []string{"  app.ledgerline.io "}, true},
		{"subdomain is a different host", "https://evil.app.ledgerline.io", []string{"app.ledgerline.io"}, false},
		{"suffix lookalike", "https://app.ledgerline.io.evil.com", []string{"app.ledgerline.io"}, false},
		{"ipv6 loopback with pinned port", "http://[::1]:8080", []string{"[::1]:8080"}, true},
		{"second entry matches", "https://admin.ledgerline.io", []string{"app.ledgerline.io", "admin.ledgerline.io"}, true},
		{"origin without scheme", "app.ledgerline.io", []string{"app.ledgerline.io"}, false},
		{"null origin from sandboxed frame", "null", []string{"app.ledgerline.io"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOriginAllowed(tt.origin, tt.allowedHosts))
		})
	}
}

func TestCORS(t *testing.T) {
	allowed := []string{"app.ledgerline.io", "localhost:5173"}

	tests := []struct {
		name        string
		hosts       []string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantCreds   bool
		wantNext    bool
		wantHeaders bool
	}{
		{
			name:   "open config answers any origin with wildcard",
			hosts:  nil,
			method: http.MethodGet, origin: "https://anywhere.example",
			wantStatus: http.StatusOK, wantOrigin: "*", wantNext: true, wantHeaders: true,
		},
		{
			name:   "allowed origin is echoed with credentials",
			hosts:  allowed,
			method: http.MethodPost, origin: "https://app.ledgerline.io",
			wantStatus: http.StatusOK, wantOrigin: "https://app.ledgerline.io", wantCreds: true, wantNext: true, wantHeaders: true,
		},
		{
			name:   "preflight for a transaction correction",
			hosts:  allowed,
			method: http.MethodOptions, origin: "http://localhost:5173",
			wantStatus: http.StatusNoContent, wantOrigin: "http://localhost:5173", wantCreds: true, wantHeaders: true,
		},
		{
			name:   "preflight from unknown origin is refused",
			hosts:  allowed,
			method: http.MethodOptions, origin: "https://evil.example",
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "dev server on another port is refused",
			hosts:  allowed,
			method: http.MethodGet, origin: "http://localhost:3000",
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "parser upload without origin passes untouched",
			hosts:  allowed,
			method: http.MethodPost, origin: "",
			wantStatus: http.StatusOK, wantNext: true, wantHeaders: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/transactions/abc", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()

			CORS(tt.hosts)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantNext, called)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rr.Header().Get("Access-Control-Allow-Credentials") == "true")
			if tt.wantCreds {
				assert.Equal(t, "Origin", rr.Header().Get("Vary"))
			}
			if tt.wantHeaders {
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
				assert.True(t, strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "Authorization"))
			}
		})
	}
}
