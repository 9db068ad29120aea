package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/llamalith/llamalith/internal/api/response"
)

// Recovery converts handler panics into a 500 error envelope. Client
// polling continues unaffected; only the panicking request fails.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
