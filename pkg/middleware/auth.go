package middleware

import (
	"net/http"

	"hotel-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	UserIDHeader   = "X-User-ID"
	AdminKeyHeader = "X-Admin-Key"
)

// RequireUser trusts the identity gateway in front of this service to have
// authenticated the caller and forwarded their id.
func RequireUser(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserIDHeader)
			if raw == "" {
				utils.ResponseUnauthorized(w, "Missing user identity")
				return
			}

			userID, err := uuid.Parse(raw)
			if err != nil {
				logger.Warn("Rejected malformed user identity",
					zap.String("value", raw),
					zap.String("path", r.URL.Path))
				utils.ResponseUnauthorized(w, "Invalid user identity")
				return
			}

			ctx := utils.SetUserContext(r.Context(), userID, utils.RoleGuest)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminKey guards operational routes with a shared key checked against a
// bcrypt hash. An empty hash disables the routes entirely.
func AdminKey(keyHash string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				utils.ResponseForbidden(w, "Admin access is disabled")
				return
			}

			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				utils.ResponseUnauthorized(w, "Missing admin key")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				logger.Warn("Admin check: invalid key",
					zap.String("path", r.URL.Path),
					zap.String("ip", r.RemoteAddr))
				utils.ResponseForbidden(w, "Admin access required")
				return
			}

			next.ServeHTTP(w, r.WithContext(utils.SetUserContext(r.Context(), uuid.Nil, utils.RoleAdmin)))
		})
	}
}
