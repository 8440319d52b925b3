package store

import (
	"context"
	"errors"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement it. Sub-repositories keep concerns separate and make the
// transactional surface explicit.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	VerificationTokens() VerificationTokens
	WhitelistGrants() WhitelistGrants
	OAuthStates() OAuthStates

	ApplyMigrations() error

	// Tx starts a read/write transaction scoped to the returned Tx. The
	// caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing on nil and rolling
	// back on error. Multi-step consumption (refresh rotation) goes through
	// here.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources.
	Close() error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store with Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user. Returns ErrAlreadyExists when the email
	// is taken.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up by case-folded email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// MarkUserVerified flips verified and bumps updated_at.
	MarkUserVerified(ctx context.Context, userID string) error

	// UpdatePasswordHash replaces the credential hash.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetUserActive soft-enables/disables the account.
	SetUserActive(ctx context.Context, userID string, active bool) error
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// MarkRefreshTokenUsed is the atomic check-then-flip for rotation: the
	// update succeeds only while used=0 and revoked=0. Returns false when
	// the guard failed, meaning a concurrent caller already consumed the
	// record.
	MarkRefreshTokenUsed(ctx context.Context, hash string) (bool, error)

	// RevokeFamily revokes every record in a rotation family. Idempotent.
	RevokeFamily(ctx context.Context, familyID string) error

	// RevokeAllUserRefreshTokens revokes every family belonging to a user
	// (logout everywhere, password reset). Idempotent.
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens is housekeeping only; correctness never
	// depends on it running.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}

type VerificationTokens interface {
	CreateVerificationToken(ctx context.Context, t domain.VerificationToken) error

	GetVerificationTokenByHash(ctx context.Context, hash string) (domain.VerificationToken, error)

	// MarkVerificationTokenUsed flips used=1 only while used=0; false means
	// a concurrent consumer won the race.
	MarkVerificationTokenUsed(ctx context.Context, id string) (bool, error)

	DeleteExpiredVerificationTokens(ctx context.Context) error
}

type WhitelistGrants interface {
	CreateWhitelistGrant(ctx context.Context, g domain.WhitelistGrant) error

	GetWhitelistGrantByID(ctx context.Context, id string) (domain.WhitelistGrant, error)

	// GetActiveWhitelistGrantByEmail returns the grant that is active and
	// unexpired at time now, or ErrNotFound. Read on every resolution; never
	// cached.
	GetActiveWhitelistGrantByEmail(ctx context.Context, email string, now time.Time) (domain.WhitelistGrant, error)

	UpdateWhitelistGrant(ctx context.Context, g domain.WhitelistGrant) error

	// DeactivateWhitelistGrant clears active; the row is kept for audit.
	DeactivateWhitelistGrant(ctx context.Context, id string) error

	ListWhitelistGrants(ctx context.Context) ([]domain.WhitelistGrant, error)
}

type OAuthStates interface {
	CreateOAuthState(ctx context.Context, s domain.OAuthState) error

	// ConsumeOAuthState atomically checks existence, non-expiry and
	// consumed=0, and flips consumed. Exactly one of N racing callers
	// observes true.
	ConsumeOAuthState(ctx context.Context, hash string, now time.Time) (bool, error)

	DeleteExpiredOAuthStates(ctx context.Context) error
}
