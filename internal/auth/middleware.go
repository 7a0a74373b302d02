package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/Manny1440/DreamScapers/internal/api"
)

type contextKey string

const claimsKey contextKey = "identity_claims"

// Optional attaches claims when a bearer token is present. A request with no
// Authorization header passes through anonymously; a bad token is rejected.
func Optional(m *TokenManager) func(http.Handler) http.Handler {
	return middleware(m, false)
}

// Required rejects requests without a valid bearer token.
func Required(m *TokenManager) func(http.Handler) http.Handler {
	return middleware(m, true)
}

func middleware(m *TokenManager, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					api.HandleError(w, api.ErrUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := m.Validate(strings.TrimSpace(token))
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// Identity returns the authenticated email, or "" for anonymous requests.
func Identity(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Email
	}
	return ""
}
