package domain

import "time"

// GrantTier labels why a grant exists; the explicit permission list is what
// actually takes effect.
type GrantTier string

const (
	TierStandard GrantTier = "standard"
	TierElevated GrantTier = "elevated"
	TierCustom   GrantTier = "custom"
)

// WhitelistGrant is an administrator-issued override of a user's role-default
// permissions, keyed by email. Expired or deactivated grants are bypassed
// during resolution, never deleted.
type WhitelistGrant struct {
	ID          string
	Email       string
	Tier        GrantTier
	Permissions []string // explicit set; empty means zero permissions, not a fallback
	GrantedBy   string
	GrantedAt   time.Time
	ExpiresAt   *time.Time // nil = no expiry
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InEffect reports whether the grant overrides role defaults at time now.
func (g WhitelistGrant) InEffect(now time.Time) bool {
	if !g.Active {
		return false
	}
	if g.ExpiresAt != nil && now.After(*g.ExpiresAt) {
		return false
	}
	return true
}
