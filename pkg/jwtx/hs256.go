package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrIssuer     = errors.New("jwtx: issuer mismatch")
)

// Signer issues signed access envelopes.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// Verifier validates an access envelope and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// HS256 signs and verifies envelopes with a single server-held secret.
// Stateless and safe for concurrent use. Leeway is applied to the time-based
// claims only; the signature check has no tolerance.
type HS256 struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewHS256 builds a signer/verifier from the server secret. The secret must
// carry at least 256 bits of entropy.
func NewHS256(secret []byte, issuer string, leeway time.Duration) (*HS256, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	return &HS256{secret: secret, issuer: issuer, leeway: leeway}, nil
}

func (h *HS256) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign serializes the claims into a compact JWS.
func (h *HS256) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

// Verify parses and validates the envelope. Failure modes collapse into
// ErrMalformed, ErrInvalidSig, ErrExpired and ErrIssuer so callers never
// branch on library internals.
func (h *HS256) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(h.leeway),
		jwt.WithIssuedAt(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return Claims{}, ErrExpired
		default:
			return Claims{}, ErrInvalidSig
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrMalformed
	}

	if h.issuer != "" && claims.Issuer != h.issuer {
		return Claims{}, ErrIssuer
	}

	return *claims, nil
}
