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
	"github.com/harborcrm/identity/pkg/slogx"
)

// Default verification token lifetimes.
const (
	DefaultEmailVerifyTTL   = 24 * time.Hour
	DefaultPasswordResetTTL = time.Hour
)

// VerificationService issues and consumes single-use, typed proof tokens
// (email verification, password reset). The raw value is returned once at
// issue time; only its fingerprint is stored.
type VerificationService struct {
	Store   store.Store
	Metrics *obs.Metrics

	EmailVerifyTTL   time.Duration
	PasswordResetTTL time.Duration
}

func (s *VerificationService) ttl(kind domain.VerificationKind) time.Duration {
	switch kind {
	case domain.VerificationPasswordReset:
		if s.PasswordResetTTL > 0 {
			return s.PasswordResetTTL
		}
		return DefaultPasswordResetTTL
	default:
		if s.EmailVerifyTTL > 0 {
			return s.EmailVerifyTTL
		}
		return DefaultEmailVerifyTTL
	}
}

// Issue creates a token of the given kind for a user and returns the raw
// opaque value. Issuing again does not invalidate earlier tokens; each is
// independently single-use.
func (s *VerificationService) Issue(
	ctx context.Context,
	userID string,
	kind domain.VerificationKind,
) (string, error) {
	if !kind.Valid() {
		return "", ErrVerificationInvalid
	}

	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	vt := domain.VerificationToken{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(raw),
		Kind:      kind,
		ExpiresAt: now.Add(s.ttl(kind)),
		CreatedAt: now,
	}
	if err := s.Store.VerificationTokens().CreateVerificationToken(ctx, vt); err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Debug("verification token issued",
		"user_id", userID, "kind", string(kind))
	return raw, nil
}

// Consume validates and atomically spends a token of the expected kind,
// returning the record so the caller knows which user it proves. Kind
// mismatch is indistinguishable from an unknown token.
func (s *VerificationService) Consume(
	ctx context.Context,
	raw string,
	kind domain.VerificationKind,
) (domain.VerificationToken, error) {
	fp := cryptox.FingerprintToken(raw)
	vt, err := s.Store.VerificationTokens().GetVerificationTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Metrics.Verification(string(kind), "invalid")
			return domain.VerificationToken{}, ErrVerificationInvalid
		}
		return domain.VerificationToken{}, err
	}

	if vt.Kind != kind {
		s.Metrics.Verification(string(kind), "invalid")
		return domain.VerificationToken{}, ErrVerificationInvalid
	}
	if time.Now().UTC().After(vt.ExpiresAt) {
		s.Metrics.Verification(string(kind), "expired")
		return domain.VerificationToken{}, ErrVerificationExpired
	}

	ok, err := s.Store.VerificationTokens().MarkVerificationTokenUsed(ctx, vt.ID)
	if err != nil {
		return domain.VerificationToken{}, err
	}
	if !ok {
		s.Metrics.Verification(string(kind), "replayed")
		return domain.VerificationToken{}, ErrVerificationAlreadyUsed
	}

	s.Metrics.Verification(string(kind), "ok")
	return vt, nil
}
