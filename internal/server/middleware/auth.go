package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/handoff/internal/auth"
)

// RequireAPIKey rejects requests that do not present the configured API key,
// either as X-API-Key or as a Bearer token. A disabled guard lets every
// request through. Accepted keys are stored on the request context.
func RequireAPIKey(guard *auth.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := auth.RequestCredential(r)
			if err := guard.Authorize(cred); err != nil {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Str("path", r.URL.Path).Msg("api key rejected")
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401,"detail":"invalid or missing API key"}`))
				return
			}

			if key, ok := cred.Credential(); ok {
				r = r.WithContext(auth.WithCredential(r.Context(), key))
			}
			next.ServeHTTP(w, r)
		})
	}
}
