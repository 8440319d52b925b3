package service

import (
	"context"
	"errors"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/obs"
	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/pkg/cryptox"
	"github.com/harborcrm/identity/pkg/idx"
	"github.com/harborcrm/identity/pkg/jwtx"
	"github.com/harborcrm/identity/pkg/slogx"
)

// errRotationLost signals that a concurrent rotation consumed the record
// between our read and our flip. Never escapes this package.
var errRotationLost = errors.New("rotation lost")

// TokenService mints, verifies and rotates token pairs. Access tokens are
// stateless signed envelopes; refresh tokens are opaque values whose
// fingerprints live in the store, grouped into rotation families.
type TokenService struct {
	Signer    jwtx.Signer
	Verifier  jwtx.Verifier
	Store     store.Store
	Whitelist *WhitelistService
	Metrics   *obs.Metrics

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// MintPair issues a fresh access/refresh pair for a user. An empty familyID
// starts a new rotation family (login); a non-empty one continues an existing
// session lineage.
func (s *TokenService) MintPair(
	ctx context.Context,
	u domain.User,
	familyID string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()

	if familyID == "" {
		familyID = idx.New().String()
	}

	access, err := s.signAccess(ctx, u, familyID, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		FamilyID:  familyID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// VerifyAccess validates an access envelope and returns its claims. Purely
// local; no store round trip.
func (s *TokenService) VerifyAccess(token string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Verify(token)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return jwtx.Claims{}, ErrCredentialExpired
		}
		return jwtx.Claims{}, ErrInvalidCredential
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a new pair, consuming the old record.
//
// Presenting an already-used token is treated as theft evidence: the whole
// family is revoked and ErrTokenReuseDetected comes back. Two goroutines
// racing on the same raw value resolve through the store's conditional flip;
// the loser gets the same reuse treatment, because at flip time the record
// was consumed and there is no way to tell the race from an attack.
func (s *TokenService) Rotate(ctx context.Context, refreshOpaque string) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	if now.After(rt.ExpiresAt) {
		return nil, ErrCredentialExpired
	}
	if rt.Used && !rt.Revoked {
		return nil, s.handleReuse(ctx, rt)
	}
	if rt.Revoked {
		return nil, ErrInvalidCredential
	}

	u, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, ErrAccountDisabled
	}

	// Permissions are re-resolved, never copied from the old token, so grant
	// changes land at the next rotation at the latest.
	access, err := s.signAccess(ctx, u, rt.FamilyID, now)
	if err != nil {
		return nil, err
	}

	newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	newRT := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		FamilyID:  rt.FamilyID,
		TokenHash: cryptox.FingerprintToken(newOpaque),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Consume the old record and persist its successor atomically. The flip
	// is guarded, so exactly one of N concurrent rotations commits.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.RefreshTokens().MarkRefreshTokenUsed(ctx, fp)
		if err != nil {
			return err
		}
		if !ok {
			return errRotationLost
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, newRT)
	})
	if err != nil {
		if errors.Is(err, errRotationLost) {
			return nil, s.handleReuse(ctx, rt)
		}
		return nil, err
	}

	s.Metrics.Rotation()
	l.Debug("refresh token rotated", "user_id", u.ID, "family_id", rt.FamilyID)

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: newOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// handleReuse revokes the whole rotation family and reports the event.
// Idempotent; racing detections converge on the same state.
func (s *TokenService) handleReuse(ctx context.Context, rt domain.RefreshToken) error {
	if err := s.Store.RefreshTokens().RevokeFamily(ctx, rt.FamilyID); err != nil {
		return err
	}

	s.Metrics.ReuseDetected()
	slogx.FromContext(ctx).Warn("refresh token reuse detected, family revoked",
		"user_id", rt.UserID,
		"family_id", rt.FamilyID,
	)
	return ErrTokenReuseDetected
}

// RevokeByRefreshToken ends the session a refresh token belongs to (logout).
// Unknown tokens are a no-op so logout never leaks whether a value was valid.
func (s *TokenService) RevokeByRefreshToken(ctx context.Context, refreshOpaque string) error {
	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.RefreshTokens().RevokeFamily(ctx, rt.FamilyID)
}

// RevokeAllForUser ends every session a user holds (logout everywhere,
// password reset).
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
}

func (s *TokenService) signAccess(
	ctx context.Context,
	u domain.User,
	familyID string,
	now time.Time,
) (string, error) {
	perms, source, err := s.Whitelist.Resolve(ctx, u.Email, u.Role, now)
	if err != nil {
		return "", err
	}

	claims := jwtx.NewAccessClaims(u.ID, familyID, string(u.Role), perms, source, s.AccessTTL, s.Issuer, now)
	return s.Signer.Sign(claims)
}
