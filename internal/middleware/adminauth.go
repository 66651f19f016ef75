package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/FinHutch/licencecheck/internal/config"
)

// adminKeyHeader carries the pre-shared administrator key.
const adminKeyHeader = "X-API-KEY"

// AdminAuth guards administrative routes with a pre-shared key. The
// comparison is constant-time in both modes: bcrypt verification when a
// hash is configured, otherwise SHA-256 digests compared with
// subtle.ConstantTimeCompare. Plain string equality would leak key
// prefixes through response timing.
type AdminAuth struct {
	keyDigest  []byte
	bcryptHash []byte
	logger     *slog.Logger
}

// NewAdminAuth builds the authorizer from configuration. A configured
// bcrypt hash takes precedence over a plain key.
func NewAdminAuth(cfg config.AdminConfig, logger *slog.Logger) *AdminAuth {
	a := &AdminAuth{logger: logger.With(slog.String("component", "admin_auth"))}
	if cfg.KeyHash != "" {
		a.bcryptHash = []byte(cfg.KeyHash)
		return a
	}
	digest := sha256.Sum256([]byte(cfg.Key))
	a.keyDigest = digest[:]
	return a
}

// Handler rejects requests without a valid admin key.
func (a *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(adminKeyHeader)
		if key == "" || !a.authorize(key) {
			a.logger.WarnContext(r.Context(), "admin authorization failed",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"key_present", key != "",
			)
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) authorize(key string) bool {
	if a.bcryptHash != nil {
		return bcrypt.CompareHashAndPassword(a.bcryptHash, []byte(key)) == nil
	}
	digest := sha256.Sum256([]byte(key))
	return subtle.ConstantTimeCompare(digest[:], a.keyDigest) == 1
}
