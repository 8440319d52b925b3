package sqlite

import (
	"context"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, expires_at, used, revoked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.FamilyID, t.TokenHash, t.ExpiresAt, t.Used, t.Revoked, t.CreatedAt, t.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, family_id, token_hash, expires_at, used, revoked, created_at, updated_at
		FROM refresh_tokens WHERE token_hash = ?`, hash)

	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &t.ExpiresAt,
		&t.Used, &t.Revoked, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

// MarkRefreshTokenUsed flips used=1 only while the record is still unused and
// unrevoked. The guard in the WHERE clause is what makes concurrent rotation
// of the same raw value resolve to exactly one winner.
func (r *refreshTokensRepo) MarkRefreshTokenUsed(ctx context.Context, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET used = 1, updated_at = ?
		WHERE token_hash = ? AND used = 0 AND revoked = 0`,
		time.Now().UTC(), hash,
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

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = ?
		WHERE family_id = ? AND revoked = 0`,
		time.Now().UTC(), familyID,
	)
	return err
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = ?
		WHERE user_id = ? AND revoked = 0`,
		time.Now().UTC(), userID,
	)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now().UTC())
	return err
}
