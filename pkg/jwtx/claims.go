package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Overridable per deployment via config.
const (
	// DefaultAccessTokenTTL keeps access envelopes short-lived so a stolen
	// one ages out quickly.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL bounds how long a session lineage can survive
	// without a fresh login.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// PermissionSource records where an access token's permission snapshot came
// from: the role default table or an administrator whitelist grant.
const (
	SourceDefault   = "default"
	SourceWhitelist = "whitelist"
)

// Claims is the access-envelope payload. Changes must stay additive so old
// tokens keep parsing until they expire.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the session id, shared by every refresh record in the same
	// rotation family.
	SID string `json:"sid,omitempty"`

	// Role the subject held when the token was minted.
	Role string `json:"role,omitempty"`

	// Permissions is the effective permission snapshot at mint time.
	Permissions []string `json:"perms,omitempty"`

	// PermissionSource is "default" or "whitelist".
	PermissionSource string `json:"perm_src,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access envelope.
func NewAccessClaims(
	subject, sid string,
	role string,
	permissions []string,
	source string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:              sid,
		Role:             role,
		Permissions:      permissions,
		PermissionSource: source,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasPermission reports whether the snapshot contains the permission.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
