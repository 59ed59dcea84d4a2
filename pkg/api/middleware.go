package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const tokenContextKey contextKey = "token"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireToken checks the Bearer token against the configured bcrypt
// hashes and injects the matching token name into the request context.
func (s *server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		token := authHeader[7:]

		for _, t := range s.cfg.Auth.Tokens {
			if bcrypt.CompareHashAndPassword(
				[]byte(t.Hash), []byte(token),
			) == nil {
				ctx := context.WithValue(r.Context(), tokenContextKey, t.Name)
				next.ServeHTTP(w, r.WithContext(ctx))

				return
			}
		}

		writeJSON(w, http.StatusUnauthorized, errorResponse{"invalid token"})
	})
}

// tokenFromContext returns the name of the authenticated token, if any.
func tokenFromContext(ctx context.Context) string {
	name, _ := ctx.Value(tokenContextKey).(string)

	return name
}
