package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/errdeck/errdeck/internal/api/response"
)

// AdminAuth guards the operator endpoints with a single bearer token,
// verified against a bcrypt hash so the plaintext token never lives in
// configuration.
type AdminAuth struct {
	tokenHash string
}

// NewAdminAuth creates an AdminAuth from the configured bcrypt hash.
func NewAdminAuth(tokenHash string) *AdminAuth {
	return &AdminAuth{tokenHash: tokenHash}
}

// Authenticate validates the Bearer token against the admin token hash.
func (a *AdminAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid admin token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
