package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func seedUser(t *testing.T, s *Store, email string) domain.User {
	t.Helper()

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Role:         domain.RoleMember,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestUsers_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "ada@example.com")

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, domain.RoleMember, got.Role)
	assert.True(t, got.Active)
	assert.False(t, got.Verified)

	byEmail, err := s.Users().GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.Users().GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsers_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)

	seedUser(t, s, "dup@example.com")

	now := time.Now().UTC()
	err := s.Users().CreateUser(context.Background(), domain.User{
		ID:        idx.New().String(),
		Email:     "dup@example.com",
		Role:      domain.RoleMember,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestUsers_MarkVerifiedAndUpdatePassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "flip@example.com")

	require.NoError(t, s.Users().MarkUserVerified(ctx, u.ID))
	require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "new-hash"))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func seedRefreshToken(t *testing.T, s *Store, userID, familyID, hash string) domain.RefreshToken {
	t.Helper()

	now := time.Now().UTC()
	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: hash,
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(context.Background(), rt))
	return rt
}

func TestRefreshTokens_MarkUsedExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "rotate@example.com")
	seedRefreshToken(t, s, u.ID, "fam-1", "hash-1")

	ok, err := s.RefreshTokens().MarkRefreshTokenUsed(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second flip must lose the guard.
	ok, err = s.RefreshTokens().MarkRefreshTokenUsed(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshTokens_MarkUsedConcurrent(t *testing.T) {
	s := newTestStore(t)

	u := seedUser(t, s, "race@example.com")
	seedRefreshToken(t, s, u.ID, "fam-1", "hash-race")

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.RefreshTokens().MarkRefreshTokenUsed(context.Background(), "hash-race")
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRefreshTokens_RevokeFamily(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "family@example.com")
	seedRefreshToken(t, s, u.ID, "fam-a", "a-1")
	seedRefreshToken(t, s, u.ID, "fam-a", "a-2")
	seedRefreshToken(t, s, u.ID, "fam-b", "b-1")

	require.NoError(t, s.RefreshTokens().RevokeFamily(ctx, "fam-a"))

	// Revoked records reject the flip.
	ok, err := s.RefreshTokens().MarkRefreshTokenUsed(ctx, "a-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// The other family is untouched.
	ok, err = s.RefreshTokens().MarkRefreshTokenUsed(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshTokens_RevokeAllForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "everywhere@example.com")
	other := seedUser(t, s, "bystander@example.com")
	seedRefreshToken(t, s, u.ID, "fam-a", "u-1")
	seedRefreshToken(t, s, u.ID, "fam-b", "u-2")
	seedRefreshToken(t, s, other.ID, "fam-c", "o-1")

	require.NoError(t, s.RefreshTokens().RevokeAllUserRefreshTokens(ctx, u.ID))

	for _, hash := range []string{"u-1", "u-2"} {
		ok, err := s.RefreshTokens().MarkRefreshTokenUsed(ctx, hash)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := s.RefreshTokens().MarkRefreshTokenUsed(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerificationTokens_SingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "verify@example.com")
	now := time.Now().UTC()
	vt := domain.VerificationToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: "v-hash",
		Kind:      domain.VerificationEmail,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, s.VerificationTokens().CreateVerificationToken(ctx, vt))

	got, err := s.VerificationTokens().GetVerificationTokenByHash(ctx, "v-hash")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationEmail, got.Kind)
	assert.False(t, got.Used)

	ok, err := s.VerificationTokens().MarkVerificationTokenUsed(ctx, vt.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerificationTokens().MarkVerificationTokenUsed(ctx, vt.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOAuthStates_ConsumeOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.OAuthStates().CreateOAuthState(ctx, domain.OAuthState{
		ID:        idx.New().String(),
		ValueHash: "state-hash",
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now,
	}))

	ok, err := s.OAuthStates().ConsumeOAuthState(ctx, "state-hash", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.OAuthStates().ConsumeOAuthState(ctx, "state-hash", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOAuthStates_ConsumeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.OAuthStates().CreateOAuthState(ctx, domain.OAuthState{
		ID:        idx.New().String(),
		ValueHash: "stale-hash",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-time.Hour),
	}))

	ok, err := s.OAuthStates().ConsumeOAuthState(ctx, "stale-hash", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOAuthStates_ConsumeConcurrent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.OAuthStates().CreateOAuthState(context.Background(), domain.OAuthState{
		ID:        idx.New().String(),
		ValueHash: "race-hash",
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now,
	}))

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.OAuthStates().ConsumeOAuthState(context.Background(), "race-hash", time.Now().UTC())
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestWhitelistGrants_ActiveLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := now.Add(-time.Hour)
	require.NoError(t, s.WhitelistGrants().CreateWhitelistGrant(ctx, domain.WhitelistGrant{
		ID:          idx.New().String(),
		Email:       "grant@example.com",
		Tier:        domain.TierCustom,
		Permissions: []string{domain.PermRecordsRead},
		GrantedBy:   "admin-1",
		GrantedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   &expired,
		Active:      true,
		CreatedAt:   now.Add(-2 * time.Hour),
		UpdatedAt:   now.Add(-2 * time.Hour),
	}))

	// Only the expired grant exists; lookup finds nothing.
	_, err := s.WhitelistGrants().GetActiveWhitelistGrantByEmail(ctx, "grant@example.com", now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	live := domain.WhitelistGrant{
		ID:          idx.New().String(),
		Email:       "grant@example.com",
		Tier:        domain.TierElevated,
		Permissions: []string{domain.PermRecordsRead, domain.PermReportsRead},
		GrantedBy:   "admin-1",
		GrantedAt:   now,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.WhitelistGrants().CreateWhitelistGrant(ctx, live))

	got, err := s.WhitelistGrants().GetActiveWhitelistGrantByEmail(ctx, "grant@example.com", now)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
	assert.ElementsMatch(t, live.Permissions, got.Permissions)
	assert.Nil(t, got.ExpiresAt)
}

func TestWhitelistGrants_EmptyPermissionSetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	g := domain.WhitelistGrant{
		ID:        idx.New().String(),
		Email:     "zero@example.com",
		Tier:      domain.TierCustom,
		GrantedBy: "admin-1",
		GrantedAt: now,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.WhitelistGrants().CreateWhitelistGrant(ctx, g))

	got, err := s.WhitelistGrants().GetActiveWhitelistGrantByEmail(ctx, "zero@example.com", now)
	require.NoError(t, err)
	assert.Empty(t, got.Permissions)
	assert.True(t, got.InEffect(now))
}

func TestWhitelistGrants_DeactivateBypasses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	g := domain.WhitelistGrant{
		ID:          idx.New().String(),
		Email:       "revoked@example.com",
		Tier:        domain.TierStandard,
		Permissions: []string{domain.PermRecordsRead},
		GrantedBy:   "admin-1",
		GrantedAt:   now,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.WhitelistGrants().CreateWhitelistGrant(ctx, g))
	require.NoError(t, s.WhitelistGrants().DeactivateWhitelistGrant(ctx, g.ID))

	_, err := s.WhitelistGrants().GetActiveWhitelistGrantByEmail(ctx, "revoked@example.com", now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Row survives for audit.
	kept, err := s.WhitelistGrants().GetWhitelistGrantByID(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, kept.Active)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	errBoom := assert.AnError
	err := s.WithTx(ctx, func(tx store.Tx) error {
		now := time.Now().UTC()
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID:        idx.New().String(),
			Email:     "ghost@example.com",
			Role:      domain.RoleMember,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	_, err = s.Users().GetUserByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHousekeepingDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := seedUser(t, s, "sweep@example.com")

	stale := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		FamilyID:  "fam-old",
		TokenHash: "old-hash",
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-48 * time.Hour),
		UpdatedAt: now.Add(-48 * time.Hour),
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, stale))

	require.NoError(t, s.RefreshTokens().DeleteExpiredRefreshTokens(ctx))
	require.NoError(t, s.VerificationTokens().DeleteExpiredVerificationTokens(ctx))
	require.NoError(t, s.OAuthStates().DeleteExpiredOAuthStates(ctx))

	_, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "old-hash")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
