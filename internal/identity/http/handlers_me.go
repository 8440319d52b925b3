package http

import (
	"net/http"

	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/pkg/httpx"
)

// MeHandler returns the authenticated caller's account summary plus the
// permission snapshot baked into the presented token.
type MeHandler struct {
	AuthService *service.AuthService
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorResponse{
			Error: "invalid_token",
		})
		return
	}

	sum, err := h.AuthService.Me(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{
		"id":       sum.ID,
		"email":    sum.Email,
		"role":     sum.Role,
		"active":   sum.Active,
		"verified": sum.Verified,
	}
	if claims, ok := httpx.ClaimsFromContext(ctx); ok {
		resp["permissions"] = claims.Permissions
		resp["permission_source"] = claims.PermissionSource
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
