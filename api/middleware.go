package api

import (
	"context"
	"net/http"
	"strings"

	"FinLedgerSaas/api/constants"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor is the upstream-validated identity attached to every ingestion
// request. Credential checks happen at the auth proxy, not here.
type Actor struct {
	UserID string
	Role   string
}

// ActorFromContext returns the actor attached by RequireAdmin, or a zero
// Actor when the request bypassed the middleware (tests).
func ActorFromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey).(Actor); ok {
		return a
	}
	return Actor{}
}

// RequireAdmin trusts the identity headers injected by the upstream auth
// layer and rejects anything that is not an admin. Ingestion routes are
// admin-only.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(constants.HeaderUserID))
		role := strings.TrimSpace(strings.ToLower(r.Header.Get(constants.HeaderUserRole)))
		if userID == "" || role != constants.RoleAdmin {
			RespondWithError(w, http.StatusForbidden, constants.ErrUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, Actor{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
