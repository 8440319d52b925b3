package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
)

type whitelistGrantsRepo struct {
	db dbtx
}

func (r *whitelistGrantsRepo) CreateWhitelistGrant(
	ctx context.Context,
	g domain.WhitelistGrant,
) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO whitelist_grants (id, email, tier, permissions, granted_by, granted_at, expires_at, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Email, string(g.Tier), joinPermissions(g.Permissions),
		g.GrantedBy, g.GrantedAt, mapOptionalTime(g.ExpiresAt), g.Active, g.CreatedAt, g.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *whitelistGrantsRepo) GetWhitelistGrantByID(
	ctx context.Context,
	id string,
) (domain.WhitelistGrant, error) {
	return r.scanGrant(r.db.QueryRowContext(ctx, grantColumns+` WHERE id = ?`, id))
}

// GetActiveWhitelistGrantByEmail returns the most recent grant that is active
// and unexpired at now. Resolution hits this on every permission computation;
// nothing is cached.
func (r *whitelistGrantsRepo) GetActiveWhitelistGrantByEmail(
	ctx context.Context,
	email string,
	now time.Time,
) (domain.WhitelistGrant, error) {
	return r.scanGrant(r.db.QueryRowContext(ctx, grantColumns+`
		WHERE email = ? AND active = 1 AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY granted_at DESC LIMIT 1`, email, now))
}

func (r *whitelistGrantsRepo) UpdateWhitelistGrant(
	ctx context.Context,
	g domain.WhitelistGrant,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE whitelist_grants
		SET tier = ?, permissions = ?, expires_at = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		string(g.Tier), joinPermissions(g.Permissions), mapOptionalTime(g.ExpiresAt),
		g.Active, time.Now().UTC(), g.ID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// DeactivateWhitelistGrant bypasses the grant without deleting it; the row
// stays for audit.
func (r *whitelistGrantsRepo) DeactivateWhitelistGrant(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE whitelist_grants SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *whitelistGrantsRepo) ListWhitelistGrants(
	ctx context.Context,
) ([]domain.WhitelistGrant, error) {
	rows, err := r.db.QueryContext(ctx, grantColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WhitelistGrant
	for rows.Next() {
		g, err := r.scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const grantColumns = `
	SELECT id, email, tier, permissions, granted_by, granted_at, expires_at, active, created_at, updated_at
	FROM whitelist_grants`

func (r *whitelistGrantsRepo) scanGrant(row rowScanner) (domain.WhitelistGrant, error) {
	var g domain.WhitelistGrant
	var tier, permissions string
	var expiresAt sql.NullTime

	err := row.Scan(&g.ID, &g.Email, &tier, &permissions, &g.GrantedBy,
		&g.GrantedAt, &expiresAt, &g.Active, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return domain.WhitelistGrant{}, mapNotFound(err)
	}

	g.Tier = domain.GrantTier(tier)
	g.Permissions = splitAndFilter(permissions)
	g.ExpiresAt = mapNullTimePtr(expiresAt)
	return g, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
