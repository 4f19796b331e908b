package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// Allow browser client from origins to call the api
// Empty origins allow any. Tokens never travel in cookies so credentials are off
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		MaxAge:           3600,
		AllowCredentials: false,
	})

	return c.Handler
}
