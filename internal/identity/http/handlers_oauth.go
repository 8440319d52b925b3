package http

import (
	"net/http"

	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/pkg/httpx"
)

// OAuthHandler serves the external-provider login handshake.
type OAuthHandler struct {
	AuthService *service.AuthService
}

// Initiate starts the redirect flow: mints a single-use state value and sends
// the browser to the provider.
func (h *OAuthHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.AuthService.OAuthBegin(r.Context(), r.PathValue("provider"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

// Callback completes the flow. The state is spent before the code is touched;
// a replayed or expired state kills the whole attempt.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		writeInvalidBody(w)
		return
	}

	pair, err := h.AuthService.OAuthCallback(r.Context(), r.PathValue("provider"), state, code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	})
}
