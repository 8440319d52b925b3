package service

import (
	"context"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/obs"
	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/pkg/cryptox"
	"github.com/harborcrm/identity/pkg/idx"
)

// DefaultOAuthStateTTL bounds how long a login redirect may sit before the
// callback arrives.
const DefaultOAuthStateTTL = 10 * time.Minute

// OAuthIdentity is what a provider asserts about the end user after a
// successful code exchange.
type OAuthIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

// OAuthProvider abstracts an external identity provider. Implementations wrap
// the provider's authorize/exchange endpoints.
type OAuthProvider interface {
	Name() string

	// AuthURL returns the provider authorize URL carrying the given state.
	AuthURL(state string) string

	// Exchange swaps the callback code for the provider's identity assertion.
	Exchange(ctx context.Context, code string) (OAuthIdentity, error)
}

// OAuthService manages the CSRF state handshake around external-provider
// logins. State values are single-use: stored by fingerprint, consumed with
// an atomic flip so a replayed callback fails cleanly.
type OAuthService struct {
	Store     store.Store
	Providers map[string]OAuthProvider
	Metrics   *obs.Metrics

	StateTTL time.Duration
}

func (s *OAuthService) Provider(name string) (OAuthProvider, error) {
	p, ok := s.Providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Begin issues a fresh state value and returns the provider redirect URL.
func (s *OAuthService) Begin(ctx context.Context, providerName string) (string, error) {
	p, err := s.Provider(providerName)
	if err != nil {
		return "", err
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	ttl := s.StateTTL
	if ttl <= 0 {
		ttl = DefaultOAuthStateTTL
	}

	now := time.Now().UTC()
	if err := s.Store.OAuthStates().CreateOAuthState(ctx, domain.OAuthState{
		ID:        idx.New().String(),
		ValueHash: cryptox.FingerprintToken(state),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", err
	}

	return p.AuthURL(state), nil
}

// ConsumeState spends a state value. Expired, unknown and already-consumed
// states all fail the same way; replay of a consumed state also bumps the
// replay metric.
func (s *OAuthService) ConsumeState(ctx context.Context, state string) error {
	ok, err := s.Store.OAuthStates().ConsumeOAuthState(
		ctx, cryptox.FingerprintToken(state), time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		s.Metrics.OAuthReplay()
		return ErrOAuthStateInvalid
	}
	return nil
}
