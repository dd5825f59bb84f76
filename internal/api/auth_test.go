package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Shoffly/dealer-visits/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authConfig(rps float64, burst int) config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "reader-key", Extra: "reader-extra", Name: "reader", Permissions: []string{"read:visits", "read:fleet"}},
				{Key: "admin-key", Extra: "admin-extra", Name: "admin"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: rps, Burst: burst},
	}
}

func wrapOK(auth *HTTPAuth) http.Handler {
	return auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestHTTPAuth(t *testing.T) {
	auth := NewHTTPAuth(authConfig(0, 0))
	handler := wrapOK(auth)

	do := func(key, extra, method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		if key != "" {
			req.Header.Set("x-api-key", key)
		}
		if extra != "" {
			req.Header.Set("x-api-extra", extra)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("MissingHeaders", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("", "", http.MethodGet, "/api/v1/visits/active"))
	})

	t.Run("UnknownKey", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("ghost", "x", http.MethodGet, "/api/v1/visits/active"))
	})

	t.Run("WrongExtra", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("reader-key", "wrong", http.MethodGet, "/api/v1/visits/active"))
	})

	t.Run("ValidReader", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("reader-key", "reader-extra", http.MethodGet, "/api/v1/visits/active"))
	})

	t.Run("ReaderCannotWrite", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do("reader-key", "reader-extra", http.MethodPost, "/api/v1/visits"))
	})

	t.Run("UnrestrictedKeyWrites", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("admin-key", "admin-extra", http.MethodPost, "/api/v1/visits"))
	})
}

func TestHTTPAuthDisabled(t *testing.T) {
	cfg := authConfig(0, 0)
	cfg.Auth.Enabled = false
	handler := wrapOK(NewHTTPAuth(cfg))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/visits/active", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPAuthRateLimit(t *testing.T) {
	handler := wrapOK(NewHTTPAuth(authConfig(1, 2)))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/visits/active", nil)
		req.Header.Set("x-api-key", "reader-key")
		req.Header.Set("x-api-extra", "reader-extra")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	require.Equal(t, http.StatusOK, codes[0])
	require.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestRequiredPermission(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/visits/active", "read:visits"},
		{http.MethodGet, "/api/v1/visits/abc", "read:visits"},
		{http.MethodPost, "/api/v1/visits", "write:visits"},
		{http.MethodPost, "/api/v1/visits/abc/confirm", "write:visits"},
		{http.MethodGet, "/api/v1/fleet/cars", "read:fleet"},
		{http.MethodGet, "/api/v1/dealers", "read:fleet"},
		{http.MethodGet, "/api/v1/queue", "read:fleet"},
		{http.MethodGet, "/healthz", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, requiredPermission(req), "%s %s", tc.method, tc.path)
	}
}
