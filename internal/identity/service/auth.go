package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/obs"
	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/pkg/cryptox"
	"github.com/harborcrm/identity/pkg/idx"
	"github.com/harborcrm/identity/pkg/slogx"
)

// MinPasswordLength is the floor for user-chosen secrets.
const MinPasswordLength = 10

// Notifier delivers verification material to the user out of band. The
// identity service never renders or sends mail itself.
type Notifier interface {
	SendEmailVerification(ctx context.Context, email, rawToken string) error
	SendPasswordReset(ctx context.Context, email, rawToken string) error
}

// NopNotifier discards notifications. Used in tests and when no mail
// transport is configured.
type NopNotifier struct{}

func (NopNotifier) SendEmailVerification(context.Context, string, string) error { return nil }
func (NopNotifier) SendPasswordReset(context.Context, string, string) error     { return nil }

// AuthService composes the token, verification, whitelist and OAuth services
// into the user-facing flows: register, login, refresh, logout, verify,
// reset, external login.
type AuthService struct {
	Store         store.Store
	Tokens        *TokenService
	Verifications *VerificationService
	OAuth         *OAuthService
	Notifier      Notifier
	Metrics       *obs.Metrics

	// RequireVerifiedEmail gates login on a confirmed address.
	RequireVerifiedEmail bool
}

// Register creates an unverified account and kicks off email verification.
// No credentials are returned; the user logs in after confirming.
func (s *AuthService) Register(ctx context.Context, email, password string) (domain.Summary, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.Summary{}, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return domain.Summary{}, ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Summary{}, err
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleMember,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Summary{}, ErrUserAlreadyExists
		}
		return domain.Summary{}, err
	}

	raw, err := s.Verifications.Issue(ctx, u.ID, domain.VerificationEmail)
	if err != nil {
		return domain.Summary{}, err
	}
	if err := s.Notifier.SendEmailVerification(ctx, u.Email, raw); err != nil {
		// The account exists; delivery failure is re-requestable.
		slogx.FromContext(ctx).Error("verification email delivery failed",
			"user_id", u.ID, "error", err)
	}

	s.Metrics.Registration()
	slogx.FromContext(ctx).Info("user registered", "user_id", u.ID)
	return u.Summary(), nil
}

// Login checks the password and account state and mints a fresh token pair,
// starting a new rotation family.
//
// An unknown email and a wrong password fail identically. The hash check runs
// even for unknown accounts so the two paths cost the same.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.BurnPasswordCheck(password)
			s.Metrics.Login("failed")
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			// Accounts provisioned through an external provider store no
			// password hash, so the check fails before doing any work. Burn a
			// full derivation anyway so this path costs the same as a real
			// mismatch.
			cryptox.BurnPasswordCheck(password)
		}
		s.Metrics.Login("failed")
		return nil, ErrAuthenticationFailed
	}

	if !u.Active {
		s.Metrics.Login("disabled")
		return nil, ErrAccountDisabled
	}
	if s.RequireVerifiedEmail && !u.Verified {
		s.Metrics.Login("unverified")
		return nil, ErrAccountNotVerified
	}

	pair, err := s.Tokens.MintPair(ctx, u, "")
	if err != nil {
		return nil, err
	}

	s.Metrics.Login("ok")
	slogx.FromContext(ctx).Info("login", "user_id", u.ID)
	return pair, nil
}

// Refresh rotates a refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	return s.Tokens.Rotate(ctx, refreshToken)
}

// Logout ends the session the refresh token belongs to.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.Tokens.RevokeByRefreshToken(ctx, refreshToken)
}

// LogoutEverywhere revokes every session the user holds.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID string) error {
	return s.Tokens.RevokeAllForUser(ctx, userID)
}

// RequestEmailVerification re-issues a verification token. Succeeds silently
// for unknown or already-verified addresses.
func (s *AuthService) RequestEmailVerification(ctx context.Context, email string) error {
	u, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.Verified {
		return nil
	}

	raw, err := s.Verifications.Issue(ctx, u.ID, domain.VerificationEmail)
	if err != nil {
		return err
	}
	return s.Notifier.SendEmailVerification(ctx, u.Email, raw)
}

// ConfirmEmailVerification spends an email-verify token and flips the account
// to verified.
func (s *AuthService) ConfirmEmailVerification(ctx context.Context, rawToken string) error {
	vt, err := s.Verifications.Consume(ctx, rawToken, domain.VerificationEmail)
	if err != nil {
		return err
	}

	if err := s.Store.Users().MarkUserVerified(ctx, vt.UserID); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("email verified", "user_id", vt.UserID)
	return nil
}

// RequestPasswordReset issues a reset token for the account, if one exists.
// Always acknowledges, so the endpoint cannot be used to probe for emails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.Store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	raw, err := s.Verifications.Issue(ctx, u.ID, domain.VerificationPasswordReset)
	if err != nil {
		return err
	}
	return s.Notifier.SendPasswordReset(ctx, u.Email, raw)
}

// ConfirmPasswordReset spends a reset token, replaces the credential hash and
// revokes every standing session. A changed password must invalidate anything
// minted under the old one.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	vt, err := s.Verifications.Consume(ctx, rawToken, domain.VerificationPasswordReset)
	if err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.Store.Users().UpdatePasswordHash(ctx, vt.UserID, hash); err != nil {
		return err
	}
	if err := s.Tokens.RevokeAllForUser(ctx, vt.UserID); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password reset", "user_id", vt.UserID)
	return nil
}

// OAuthBegin starts an external-provider login and returns the redirect URL.
func (s *AuthService) OAuthBegin(ctx context.Context, provider string) (string, error) {
	return s.OAuth.Begin(ctx, provider)
}

// OAuthCallback completes an external-provider login: the state is consumed
// before anything else, and a failed consume aborts the flow outright. The
// provider identity is then exchanged and matched to a local account,
// creating one on first login.
//
// A bad state fails the same way as a bad code exchange. The distinction
// lives in logs and the replay metric, not on the wire.
func (s *AuthService) OAuthCallback(
	ctx context.Context,
	provider, state, code string,
) (*domain.TokenPair, error) {
	if err := s.OAuth.ConsumeState(ctx, state); err != nil {
		if errors.Is(err, ErrOAuthStateInvalid) {
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}

	p, err := s.OAuth.Provider(provider)
	if err != nil {
		return nil, err
	}

	ident, err := p.Exchange(ctx, code)
	if err != nil {
		slogx.FromContext(ctx).Warn("oauth exchange failed", "provider", provider, "error", err)
		return nil, ErrAuthenticationFailed
	}

	u, err := s.findOrCreateOAuthUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, ErrAccountDisabled
	}

	pair, err := s.Tokens.MintPair(ctx, u, "")
	if err != nil {
		return nil, err
	}

	s.Metrics.Login("oauth")
	slogx.FromContext(ctx).Info("oauth login", "user_id", u.ID, "provider", provider)
	return pair, nil
}

func (s *AuthService) findOrCreateOAuthUser(
	ctx context.Context,
	ident OAuthIdentity,
) (domain.User, error) {
	email := normalizeEmail(ident.Email)
	if !validEmail(email) {
		return domain.User{}, ErrAuthenticationFailed
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	u = domain.User{
		ID:        idx.New().String(),
		Email:     email,
		Role:      domain.RoleMember,
		Active:    true,
		Verified:  ident.EmailVerified,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		// A concurrent registration for the same address wins; use it.
		if errors.Is(err, store.ErrAlreadyExists) {
			return s.Store.Users().GetUserByEmail(ctx, email)
		}
		return domain.User{}, err
	}

	s.Metrics.Registration()
	return u, nil
}

// Me returns the caller's account summary.
func (s *AuthService) Me(ctx context.Context, userID string) (domain.Summary, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Summary{}, ErrUserNotFound
		}
		return domain.Summary{}, err
	}
	return u.Summary(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
