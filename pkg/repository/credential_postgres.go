package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

func (r *PostgresBackend) GetCredential(ctx context.Context, userId string) (*types.Credential, error) {
	query := `
		SELECT user_id, access_token, refresh_token, token_expiry, scope, connected_at, updated_at
		FROM gmail_credential WHERE user_id = $1
	`

	var c types.Credential
	err := r.db.QueryRowContext(ctx, query, userId).Scan(
		&c.UserId, &c.AccessToken, &c.RefreshToken, &c.TokenExpiry, &c.Scope, &c.ConnectedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	if err := r.openCredential(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresBackend) SaveAuthorization(ctx context.Context, userId string, grant *types.TokenGrant) (*types.Credential, error) {
	accessToken, err := r.sealer.Seal(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refreshToken, err := r.sealer.Seal(grant.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	// A re-consent without a new refresh token keeps the stored one
	query := `
		INSERT INTO gmail_credential (user_id, access_token, refresh_token, token_expiry, scope)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN gmail_credential.refresh_token ELSE EXCLUDED.refresh_token END,
			token_expiry = EXCLUDED.token_expiry,
			scope = EXCLUDED.scope,
			connected_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		RETURNING user_id, access_token, refresh_token, token_expiry, scope, connected_at, updated_at
	`

	var c types.Credential
	err = r.db.QueryRowContext(ctx, query, userId, accessToken, refreshToken, grant.Expiry, grant.Scope).Scan(
		&c.UserId, &c.AccessToken, &c.RefreshToken, &c.TokenExpiry, &c.Scope, &c.ConnectedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save authorization: %w", err)
	}

	if err := r.openCredential(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresBackend) UpdateAccessToken(ctx context.Context, userId, accessToken string, expiry time.Time) (bool, error) {
	sealed, err := r.sealer.Seal(accessToken)
	if err != nil {
		return false, fmt.Errorf("seal access token: %w", err)
	}

	query := `
		UPDATE gmail_credential
		SET access_token = $2, token_expiry = $3, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND token_expiry <= $3
	`
	result, err := r.db.ExecContext(ctx, query, userId, sealed, expiry)
	if err != nil {
		return false, fmt.Errorf("update access token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update access token: %w", err)
	}
	return rows > 0, nil
}

func (r *PostgresBackend) DeleteCredential(ctx context.Context, userId string) error {
	query := `DELETE FROM gmail_credential WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userId); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (r *PostgresBackend) ListConnectedUsers(ctx context.Context) ([]string, error) {
	query := `SELECT user_id FROM gmail_credential WHERE refresh_token <> '' ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list connected users: %w", err)
	}
	defer rows.Close()

	var userIds []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIds = append(userIds, id)
	}
	return userIds, rows.Err()
}

func (r *PostgresBackend) openCredential(c *types.Credential) error {
	var err error
	if c.AccessToken, err = r.sealer.Open(c.AccessToken); err != nil {
		return fmt.Errorf("open access token: %w", err)
	}
	if c.RefreshToken, err = r.sealer.Open(c.RefreshToken); err != nil {
		return fmt.Errorf("open refresh token: %w", err)
	}
	return nil
}
