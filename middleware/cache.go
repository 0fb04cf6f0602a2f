package middleware

import (
	"net/http"

	"github.com/MrEthical07/jwtauth"
)

// NoStoreBearer marks every response to a bearer request as uncacheable so
// shared caches never serve one principal's page to another.
func NoStoreBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := jwtauth.BearerToken(r); ok {
			w.Header().Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}
