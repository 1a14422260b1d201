package httpx

import (
	"net/http"
	"strings"

	"github.com/shoplane/marketplace-orders/internal/fulfillment"
)

// The gateway terminates authentication and forwards the verified identity in
// these headers; this service only checks the capability.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

func actorFrom(r *http.Request) fulfillment.Actor {
	role := fulfillment.Role(strings.ToLower(r.Header.Get(HeaderActorRole)))
	if role == "" {
		role = fulfillment.RoleBuyer
	}
	return fulfillment.Actor{ID: r.Header.Get(HeaderActorID), Role: role}
}

func RequireRole(roles ...fulfillment.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actorFrom(r)
			for _, want := range roles {
				if a.Role == want {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeFailure(w, http.StatusForbidden, "insufficient capability")
		})
	}
}
