package sqlite

import (
	"context"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
)

type verificationTokensRepo struct {
	db dbtx
}

func (r *verificationTokensRepo) CreateVerificationToken(
	ctx context.Context,
	t domain.VerificationToken,
) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (id, user_id, token_hash, kind, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, string(t.Kind), t.ExpiresAt, t.Used, t.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *verificationTokensRepo) GetVerificationTokenByHash(
	ctx context.Context,
	hash string,
) (domain.VerificationToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, kind, expires_at, used, created_at
		FROM verification_tokens WHERE token_hash = ?`, hash)

	var t domain.VerificationToken
	var kind string
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &kind, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return domain.VerificationToken{}, mapNotFound(err)
	}
	t.Kind = domain.VerificationKind(kind)
	return t, nil
}

// MarkVerificationTokenUsed flips used=1 only while used=0, so exactly one of
// N concurrent consumers succeeds.
func (r *verificationTokensRepo) MarkVerificationTokenUsed(
	ctx context.Context,
	id string,
) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET used = 1 WHERE id = ? AND used = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *verificationTokensRepo) DeleteExpiredVerificationTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < ? OR used = 1`, time.Now().UTC())
	return err
}
