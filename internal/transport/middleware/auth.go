package middleware

import (
	"net/http"

	"github.com/frahmantamala/payapp/internal/auth"
	"github.com/frahmantamala/payapp/pkg/logger"
)

// UserContext tags the request logger with the authenticated user. It must run
// after the bearer middleware.
func UserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok || user == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := logger.With(r.Context(), "userID", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
