package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/frahmantamala/payapp/internal"
)

// RecoveryMiddleware turns a panic into a 500 envelope and logs the stack.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					lg := logger
					if id := TraceID(r.Context()); id != "" {
						lg = lg.With("traceID", id)
					}
					lg.Error("panic recovered",
						"error", err,
						"method", r.Method,
						"url", r.URL.String(),
						"stack", string(debug.Stack()))

					status, body := internal.NewInternalError("internal server error", nil).ToHTTPResponse()
					writeJSON(w, status, body)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
