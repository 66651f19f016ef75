package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FinHutch/licencecheck/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func protectedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthPlainKey(t *testing.T) {
	auth := NewAdminAuth(config.AdminConfig{Key: "super-secret"}, discardLogger())
	handler := auth.Handler(protectedHandler())

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"correct key", "super-secret", http.StatusOK},
		{"wrong key", "not-the-key", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
		{"key with different case", "SUPER-SECRET", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/generate_code", nil)
			if tt.key != "" {
				req.Header.Set("X-API-KEY", tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"msg":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestAdminAuthBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("super-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	// A configured hash wins even when a plain key is also set.
	auth := NewAdminAuth(config.AdminConfig{Key: "ignored", KeyHash: string(hash)}, discardLogger())
	handler := auth.Handler(protectedHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin/list_licences", nil)
	req.Header.Set("X-API-KEY", "super-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/list_licences", nil)
	req.Header.Set("X-API-KEY", "ignored")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
