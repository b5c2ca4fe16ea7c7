// Package auth ties inbound requests to a tenant. Agents authenticate with
// a gateway-issued key in X-API-Key; downstream tool credentials never
// appear on this surface.
package auth

import (
	"context"
	"net/http"

	"github.com/edonhq/gateway/pkg/types"
)

type contextKey struct{}

var tenantKey contextKey

// TenantFromContext returns the tenant the request authenticated as, or ""
// when the request never passed through APIKeyAuth.
func TenantFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

// APIKeyAuth rejects requests whose X-API-Key does not resolve to a tenant
// and stamps the tenant onto the request context for everything downstream.
// Health probes are exempt. The gateway accepts keys only in X-API-Key;
// Authorization is left untouched so a confused client cannot pass a
// downstream bearer token as gateway auth.
func APIKeyAuth(keys *KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			tenantID, ok := keys.Lookup(r.Header.Get("X-API-Key"))
			if !ok {
				types.ErrUnauthorized("missing or invalid API key").WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
