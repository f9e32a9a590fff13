package middleware

import (
	"net/http"
	"time"
)

// WriteDeadline bounds how long a handler may take to write its response.
// It replaces http.Server.WriteTimeout on listeners that also carry
// long-lived streams, so only the wrapped routes are cut off.
func WriteDeadline(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Writers without deadline support (recorders, some wrappers) run unbounded.
			_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d))
			next.ServeHTTP(w, r)
		})
	}
}
