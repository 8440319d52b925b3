package domain

import "time"

// OAuthState is the CSRF correlation nonce for the external-redirect login
// flow. Valid for exactly one callback.
type OAuthState struct {
	ID        string
	ValueHash string
	ExpiresAt time.Time
	Consumed  bool
	CreatedAt time.Time
}
