package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const labelColumns = `user_id, label_id, label_name, label_type, is_syncing, last_synced_at, created_at, updated_at`

func (r *PostgresBackend) ListLabelStates(ctx context.Context, userId string) ([]types.LabelSyncState, error) {
	query := `SELECT ` + labelColumns + ` FROM label_sync WHERE user_id = $1 ORDER BY label_type, label_name`
	return r.queryLabels(ctx, query, userId)
}

func (r *PostgresBackend) ListSyncingLabels(ctx context.Context, userId string) ([]types.LabelSyncState, error) {
	query := `SELECT ` + labelColumns + ` FROM label_sync WHERE user_id = $1 AND is_syncing ORDER BY label_type, label_name`
	return r.queryLabels(ctx, query, userId)
}

func (r *PostgresBackend) UpsertLabels(ctx context.Context, userId string, labels []types.ProviderLabel) error {
	if len(labels) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert labels: %w", err)
	}
	defer tx.Rollback()

	// is_syncing is only set on insert; existing preferences are never touched
	query := `
		INSERT INTO label_sync (user_id, label_id, label_name, label_type, is_syncing)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (user_id, label_id)
		DO UPDATE SET label_name = EXCLUDED.label_name, label_type = EXCLUDED.label_type, updated_at = CURRENT_TIMESTAMP
		WHERE label_sync.label_name IS DISTINCT FROM EXCLUDED.label_name OR label_sync.label_type IS DISTINCT FROM EXCLUDED.label_type
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare upsert labels: %w", err)
	}
	defer stmt.Close()

	for _, l := range labels {
		if _, err := stmt.ExecContext(ctx, userId, l.Id, l.Name, l.Type); err != nil {
			return fmt.Errorf("upsert label %s: %w", l.Id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert labels: %w", err)
	}
	return nil
}

func (r *PostgresBackend) SetLabelsSyncing(ctx context.Context, userId string, labelIds []string, isSyncing bool) (int, error) {
	query := `
		UPDATE label_sync SET is_syncing = $3, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND label_id = ANY($2)
	`
	result, err := r.db.ExecContext(ctx, query, userId, pq.Array(labelIds), isSyncing)
	if err != nil {
		return 0, fmt.Errorf("set labels syncing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set labels syncing: %w", err)
	}
	return int(rows), nil
}

func (r *PostgresBackend) SetLabelLastSynced(ctx context.Context, userId, labelId string, at time.Time) error {
	query := `UPDATE label_sync SET last_synced_at = $3, updated_at = CURRENT_TIMESTAMP WHERE user_id = $1 AND label_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userId, labelId, at); err != nil {
		return fmt.Errorf("set label last synced: %w", err)
	}
	return nil
}

func (r *PostgresBackend) queryLabels(ctx context.Context, query string, args ...any) ([]types.LabelSyncState, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	var labels []types.LabelSyncState
	for rows.Next() {
		var l types.LabelSyncState
		if err := rows.Scan(&l.UserId, &l.LabelId, &l.LabelName, &l.LabelType, &l.IsSyncing, &l.LastSyncedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}
