package service

import "errors"

// Service-level sentinels. HTTP handlers map these onto deliberately vague
// wire responses; the precise cause stays in logs and metrics.
var (
	// ErrInvalidCredential covers unknown tokens, bad signatures and revoked
	// refresh records. Indistinguishable on the wire from ErrCredentialExpired.
	ErrInvalidCredential = errors.New("invalid_credential")

	// ErrCredentialExpired marks a structurally valid credential past its
	// lifetime.
	ErrCredentialExpired = errors.New("credential_expired")

	// ErrTokenReuseDetected is returned when a consumed refresh token is
	// presented again. By the time the caller sees it the whole family is
	// already revoked.
	ErrTokenReuseDetected = errors.New("token_reuse_detected")

	// ErrAuthenticationFailed is the single answer for a bad email/password
	// combination, whether the account exists or not.
	ErrAuthenticationFailed = errors.New("authentication_failed")

	ErrAccountDisabled    = errors.New("account_disabled")
	ErrAccountNotVerified = errors.New("account_not_verified")

	ErrUserAlreadyExists = errors.New("user_already_exists")
	ErrUserNotFound      = errors.New("user_not_found")

	ErrVerificationInvalid     = errors.New("verification_invalid")
	ErrVerificationExpired     = errors.New("verification_expired")
	ErrVerificationAlreadyUsed = errors.New("verification_already_used")

	ErrOAuthStateInvalid   = errors.New("oauth_state_invalid")
	ErrUnknownProvider     = errors.New("unknown_provider")
	ErrGrantNotFound       = errors.New("grant_not_found")
	ErrInvalidGrantRequest = errors.New("invalid_grant_request")
	ErrWeakPassword        = errors.New("weak_password")
	ErrInvalidEmail        = errors.New("invalid_email")
)
