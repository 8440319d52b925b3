package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Opaque token sizes in bytes before base64url encoding.
const (
	// TokenSize128 provides 128 bits of entropy. Suitable for short-lived
	// CSRF/state values.
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy. Used for refresh and
	// verification tokens.
	TokenSize256 = 32
)

// GenerateToken returns a cryptographically random opaque token of the given
// byte length, encoded as base64url without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the deterministic SHA-256 fingerprint of an opaque
// token, base64url encoded. Stores persist fingerprints only; the raw value
// is handed to the caller exactly once and never written down.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
