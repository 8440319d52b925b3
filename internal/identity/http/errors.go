package http

import (
	"errors"
	"net/http"

	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/pkg/httpx"
	"github.com/harborcrm/identity/pkg/slogx"
)

// writeServiceError maps service sentinels onto wire responses. The bodies
// are deliberately coarse: a caller can tell WHAT failed (credentials, token,
// request shape) but not WHY, so the API is useless for probing which emails
// or tokens exist. The precise cause went to logs and metrics already.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidGrantRequest):
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "The request was malformed or failed validation.",
		})

	case errors.Is(err, service.ErrUserAlreadyExists):
		httpx.WriteJSON(w, http.StatusConflict, httpx.ErrorResponse{
			Error:            "conflict",
			ErrorDescription: "The account could not be created.",
		})

	case errors.Is(err, service.ErrAuthenticationFailed):
		httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorResponse{
			Error:            "invalid_credentials",
			ErrorDescription: "Authentication failed.",
		})

	case errors.Is(err, service.ErrAccountDisabled):
		httpx.WriteJSON(w, http.StatusForbidden, httpx.ErrorResponse{
			Error:            "account_disabled",
			ErrorDescription: "This account has been disabled.",
		})

	case errors.Is(err, service.ErrAccountNotVerified):
		httpx.WriteJSON(w, http.StatusForbidden, httpx.ErrorResponse{
			Error:            "account_not_verified",
			ErrorDescription: "Email verification is required before logging in.",
		})

	// Every refresh-side failure collapses into one body. Reuse detection in
	// particular must not announce itself to whoever is replaying the token.
	case errors.Is(err, service.ErrInvalidCredential),
		errors.Is(err, service.ErrCredentialExpired),
		errors.Is(err, service.ErrTokenReuseDetected):
		httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "The token is invalid or expired.",
		})

	// Same story for verification tokens: unknown, expired, spent and
	// wrong-kind all look alike.
	case errors.Is(err, service.ErrVerificationInvalid),
		errors.Is(err, service.ErrVerificationExpired),
		errors.Is(err, service.ErrVerificationAlreadyUsed):
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "The token is invalid or expired.",
		})

	case errors.Is(err, service.ErrUnknownProvider):
		httpx.WriteJSON(w, http.StatusNotFound, httpx.ErrorResponse{
			Error:            "unknown_provider",
			ErrorDescription: "No such identity provider.",
		})

	case errors.Is(err, service.ErrGrantNotFound),
		errors.Is(err, service.ErrUserNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, httpx.ErrorResponse{
			Error:            "not_found",
			ErrorDescription: "The requested resource does not exist.",
		})

	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, httpx.ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "An internal error occurred.",
		})
	}
}

func writeInvalidBody(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse{
		Error:            "invalid_request",
		ErrorDescription: "The request body could not be parsed.",
	})
}
