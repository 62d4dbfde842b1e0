package main

import (
	"context"
	"net/http"

	"github.com/driftroom/driftroom/pkg/auth"
)

// RequireCredential resolves the request into a validated (room, token)
// pair before any message operation runs. The room named by the credential
// must exist and must match the roomId the request claims to target;
// downstream handlers trust only the context claims, never raw request
// fields.
func (h *Handler) RequireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := auth.FromRequest(r)
		if cred == "" {
			h.Error(w, http.StatusUnauthorized, "credential required")
			return
		}

		claims, err := h.auth.Validate(cred)
		if err != nil {
			h.Error(w, http.StatusUnauthorized, "invalid credential")
			return
		}

		if roomID := r.URL.Query().Get("roomId"); roomID != "" && roomID != claims.RoomID {
			h.Error(w, http.StatusUnauthorized, "credential is for a different room")
			return
		}

		exists, err := h.store.RoomExists(r.Context(), claims.RoomID)
		if err != nil {
			h.storeError(w, err)
			return
		}
		// Reads degrade gracefully on dead rooms; only the gate for writes
		// rejects here. GET falls through so a just-expired room lists as
		// empty instead of erroring.
		if !exists && r.Method != http.MethodGet {
			h.Error(w, http.StatusNotFound, "room does not exist")
			return
		}

		ctx := context.WithValue(r.Context(), auth.ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(auth.ClaimsKey).(*auth.Claims)
	return claims
}
