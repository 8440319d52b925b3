package service

import (
	"context"
	"errors"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/pkg/idx"
	"github.com/harborcrm/identity/pkg/jwtx"
	"github.com/harborcrm/identity/pkg/slogx"
)

// WhitelistService resolves effective permissions and manages administrator
// grants. Resolution is a live read every time; grants take effect and lapse
// without restarts or cache invalidation.
type WhitelistService struct {
	Store store.Store
}

// Resolve computes the effective permission set for a user at time now.
//
// An active, unexpired grant for the user's email replaces the role defaults
// entirely. A grant with an empty permission list therefore resolves to zero
// permissions, not to the defaults. No grant means defaults.
func (s *WhitelistService) Resolve(
	ctx context.Context,
	email string,
	role domain.Role,
	now time.Time,
) ([]string, string, error) {
	grant, err := s.Store.WhitelistGrants().GetActiveWhitelistGrantByEmail(ctx, normalizeEmail(email), now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RoleDefaults(role), jwtx.SourceDefault, nil
		}
		return nil, "", err
	}

	perms := grant.Permissions
	if perms == nil {
		perms = []string{}
	}
	return perms, jwtx.SourceWhitelist, nil
}

// GrantInput is the administrator-facing shape for creating or updating a
// grant.
type GrantInput struct {
	Email       string
	Tier        domain.GrantTier
	Permissions []string
	ExpiresAt   *time.Time
}

func (in GrantInput) validate() error {
	if normalizeEmail(in.Email) == "" {
		return ErrInvalidGrantRequest
	}
	switch in.Tier {
	case domain.TierStandard, domain.TierElevated, domain.TierCustom:
	default:
		return ErrInvalidGrantRequest
	}
	return nil
}

func (s *WhitelistService) CreateGrant(
	ctx context.Context,
	grantedBy string,
	in GrantInput,
) (domain.WhitelistGrant, error) {
	if err := in.validate(); err != nil {
		return domain.WhitelistGrant{}, err
	}

	now := time.Now().UTC()
	g := domain.WhitelistGrant{
		ID:          idx.New().String(),
		Email:       normalizeEmail(in.Email),
		Tier:        in.Tier,
		Permissions: in.Permissions,
		GrantedBy:   grantedBy,
		GrantedAt:   now,
		ExpiresAt:   in.ExpiresAt,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.WhitelistGrants().CreateWhitelistGrant(ctx, g); err != nil {
		return domain.WhitelistGrant{}, err
	}

	slogx.FromContext(ctx).Info("whitelist grant created",
		"grant_id", g.ID,
		"email", g.Email,
		"tier", string(g.Tier),
		"granted_by", grantedBy,
	)
	return g, nil
}

func (s *WhitelistService) UpdateGrant(
	ctx context.Context,
	id string,
	in GrantInput,
) (domain.WhitelistGrant, error) {
	if err := in.validate(); err != nil {
		return domain.WhitelistGrant{}, err
	}

	g, err := s.Store.WhitelistGrants().GetWhitelistGrantByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.WhitelistGrant{}, ErrGrantNotFound
		}
		return domain.WhitelistGrant{}, err
	}

	g.Tier = in.Tier
	g.Permissions = in.Permissions
	g.ExpiresAt = in.ExpiresAt
	g.UpdatedAt = time.Now().UTC()

	if err := s.Store.WhitelistGrants().UpdateWhitelistGrant(ctx, g); err != nil {
		return domain.WhitelistGrant{}, err
	}
	return g, nil
}

// RevokeGrant deactivates a grant. Takes effect on the next resolution; the
// row is kept for audit.
func (s *WhitelistService) RevokeGrant(ctx context.Context, id string) error {
	if err := s.Store.WhitelistGrants().DeactivateWhitelistGrant(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrGrantNotFound
		}
		return err
	}
	slogx.FromContext(ctx).Info("whitelist grant revoked", "grant_id", id)
	return nil
}

func (s *WhitelistService) GetGrant(ctx context.Context, id string) (domain.WhitelistGrant, error) {
	g, err := s.Store.WhitelistGrants().GetWhitelistGrantByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.WhitelistGrant{}, ErrGrantNotFound
		}
		return domain.WhitelistGrant{}, err
	}
	return g, nil
}

func (s *WhitelistService) ListGrants(ctx context.Context) ([]domain.WhitelistGrant, error) {
	return s.Store.WhitelistGrants().ListWhitelistGrants(ctx)
}
