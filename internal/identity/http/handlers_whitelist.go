package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/pkg/httpx"
)

// WhitelistHandler serves the administrator grant CRUD. Every route requires
// the whitelist:manage permission.
type WhitelistHandler struct {
	WhitelistService *service.WhitelistService
}

type grantRequest struct {
	Email       string     `json:"email"`
	Tier        string     `json:"tier"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (req grantRequest) input() service.GrantInput {
	return service.GrantInput{
		Email:       req.Email,
		Tier:        domain.GrantTier(req.Tier),
		Permissions: req.Permissions,
		ExpiresAt:   req.ExpiresAt,
	}
}

type grantResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Tier        string     `json:"tier"`
	Permissions []string   `json:"permissions"`
	GrantedBy   string     `json:"granted_by"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
}

func toGrantResponse(g domain.WhitelistGrant) grantResponse {
	perms := g.Permissions
	if perms == nil {
		perms = []string{}
	}
	return grantResponse{
		ID:          g.ID,
		Email:       g.Email,
		Tier:        string(g.Tier),
		Permissions: perms,
		GrantedBy:   g.GrantedBy,
		GrantedAt:   g.GrantedAt,
		ExpiresAt:   g.ExpiresAt,
		Active:      g.Active,
	}
}

func (h *WhitelistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	g, err := h.WhitelistService.CreateGrant(r.Context(), httpx.UserIDFromContext(r.Context()), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toGrantResponse(g))
}

func (h *WhitelistHandler) List(w http.ResponseWriter, r *http.Request) {
	grants, err := h.WhitelistService.ListGrants(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"grants": out})
}

func (h *WhitelistHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.WhitelistService.GetGrant(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toGrantResponse(g))
}

func (h *WhitelistHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	g, err := h.WhitelistService.UpdateGrant(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toGrantResponse(g))
}

func (h *WhitelistHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.WhitelistService.RevokeGrant(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
