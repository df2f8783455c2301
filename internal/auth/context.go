package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type contextKey int

const (
	authContextKey contextKey = iota
)

// WithAuthContext returns a new context carrying the AuthContext.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext extracts the AuthContext placed by Middleware.
// Returns nil for unauthenticated requests.
func FromContext(ctx context.Context) *AuthContext {
	ac, _ := ctx.Value(authContextKey).(*AuthContext)
	return ac
}

// ErrorResponder writes an error response for a failed authentication.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Middleware authenticates the bearer token of every request and stores the AuthContext.
func (g *Guard) Middleware(onError ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				log.Debug().Msg("Missing Authorization header")
				onError(w, r, ErrUnauthorized)
				return
			}

			ac, err := g.Authenticate(r.Context(), tokenString)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
		})
	}
}

// extractBearerToken extracts the token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
