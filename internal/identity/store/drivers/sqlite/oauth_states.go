package sqlite

import (
	"context"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
)

type oauthStatesRepo struct {
	db dbtx
}

func (r *oauthStatesRepo) CreateOAuthState(ctx context.Context, s domain.OAuthState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_states (id, value_hash, expires_at, consumed, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.ValueHash, s.ExpiresAt, s.Consumed, s.CreatedAt,
	)
	return mapConstraint(err)
}

// ConsumeOAuthState checks existence, non-expiry and consumed=0 and flips the
// flag in one statement. Of any number of racing callbacks presenting the
// same state, exactly one observes true.
func (r *oauthStatesRepo) ConsumeOAuthState(
	ctx context.Context,
	hash string,
	now time.Time,
) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE oauth_states SET consumed = 1
		WHERE value_hash = ? AND consumed = 0 AND expires_at > ?`,
		hash, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *oauthStatesRepo) DeleteExpiredOAuthStates(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE expires_at < ? OR consumed = 1`, time.Now().UTC())
	return err
}
