package domain

import "time"

// TokenPair is what a successful login/refresh returns: the signed access
// envelope and the opaque refresh value. The refresh value crosses the wire
// exactly once.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`
}

// RefreshToken models a stored refresh record. FamilyID ties together the
// chain of rotations descending from one login; exactly one record per family
// is unused and unrevoked at any time.
type RefreshToken struct {
	ID        string
	UserID    string
	FamilyID  string
	TokenHash string // base64url SHA-256 fingerprint, never the raw value
	ExpiresAt time.Time
	Used      bool // flipped on rotation; a used token presented again is a reuse event
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
