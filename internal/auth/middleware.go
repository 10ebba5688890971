package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-payments/internal/common"
)

// RequireAdmin rejects requests that do not carry a valid admin bearer token.
// The validated subject is stored on the request context for audit logging.
func RequireAdmin(v *TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bearer token required", nil)
				return
			}
			subject, err := v.Validate(raw)
			if err != nil {
				if errors.Is(err, ErrRoleForbidden) {
					common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
					return
				}
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "token validation failed", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithAdminSubject(r.Context(), subject)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
