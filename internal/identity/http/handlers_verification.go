package http

import (
	"encoding/json"
	"net/http"

	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/pkg/httpx"
)

// VerificationHandler serves email-verification and password-reset endpoints.
// The request variants always acknowledge, regardless of whether the address
// exists.
type VerificationHandler struct {
	AuthService *service.AuthService
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenConfirmRequest struct {
	Token string `json:"token"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *VerificationHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeInvalidBody(w)
		return
	}

	if err := h.AuthService.RequestEmailVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *VerificationHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	var req tokenConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeInvalidBody(w)
		return
	}

	if err := h.AuthService.ConfirmEmailVerification(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *VerificationHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeInvalidBody(w)
		return
	}

	if err := h.AuthService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *VerificationHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeInvalidBody(w)
		return
	}

	if err := h.AuthService.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
