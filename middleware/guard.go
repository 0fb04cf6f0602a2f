package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/jwtauth"
)

// PrincipalFromContext returns the principal a guard attached to ctx.
func PrincipalFromContext(ctx context.Context) (jwtauth.Principal, bool) {
	return jwtauth.PrincipalFromContext(ctx)
}

// Guard rejects requests that do not authenticate to a principal. The
// response carries the status and public message of the engine error.
func Guard(engine *jwtauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, jwtauth.ErrEngineNotReady)
				return
			}

			p, err := engine.Authenticate(r.Context(), r)
			if err != nil {
				writeError(w, err)
				return
			}
			if p.IsAnonymous() {
				writeError(w, jwtauth.ErrAnonymousPrincipal)
				return
			}

			ctx := jwtauth.WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Optional passes requests without a bearer token through as anonymous.
// A bearer token that is present must still authenticate.
func Optional(engine *jwtauth.Engine) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		guarded := guard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := jwtauth.BearerToken(r); !ok {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := jwtauth.StatusCode(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="jwtauth"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": jwtauth.PublicMessage(err)})
}
