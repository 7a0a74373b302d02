package middleware

import (
	"strings"

	"github.com/go-chi/cors"
	"github.com/samber/lo"
)

// CORS returns cors.Options parameterized by the given allowed origins.
// If "*" is present, AllowCredentials is set to false (browsers reject
// Access-Control-Allow-Credentials: true with a wildcard origin).
func CORS(allowedOrigins []string) cors.Options {
	allowedOrigins = lo.Compact(lo.Map(allowedOrigins, func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderRequestID},
		ExposedHeaders:   []string{HeaderRequestID, "Retry-After"},
		AllowCredentials: !lo.Contains(allowedOrigins, "*"),
		MaxAge:           300,
	}
}
