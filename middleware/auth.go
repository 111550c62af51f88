// Package middleware provides net/http glue for gating routes on access
// tokens issued by the identity engine.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	identity "github.com/mydrive/identity"
)

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated principal stored by
// [RequireAuth], if any.
func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(identity.Principal)
	return p, ok
}

// RequireAuth rejects requests without a valid access token. An expired
// token answers 401 with an X-Token-Expired header so clients know a
// refresh exchange can cure it; every other failure is a plain 401 that
// should force re-login.
func RequireAuth(engine *identity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			raw, _ := bearerToken(r.Header.Get("Authorization"))

			principal, err := engine.Authorize(raw)
			if err != nil {
				if errors.Is(err, identity.ErrTokenExpired) {
					w.Header().Set("X-Token-Expired", "true")
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	raw := value[len(bearer):]
	if raw == "" {
		return "", false
	}
	return raw, true
}
