package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const syncRunColumns = `id, user_id, label_id, sync_type, status, emails_synced, emails_skipped, error_message, started_at, completed_at`

func scanSyncRun(s rowScanner) (*types.SyncRun, error) {
	var run types.SyncRun
	err := s.Scan(
		&run.Id, &run.UserId, &run.LabelId, &run.SyncType, &run.Status, &run.EmailsSynced, &run.EmailsSkipped,
		&run.ErrorMessage, &run.StartedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *PostgresBackend) CreateSyncRun(ctx context.Context, run *types.SyncRun) (string, error) {
	query := `
		INSERT INTO sync_log (user_id, label_id, sync_type, status, emails_synced, emails_skipped, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		run.UserId, run.LabelId, run.SyncType, run.Status, run.EmailsSynced, run.EmailsSkipped, run.ErrorMessage, run.StartedAt, run.CompletedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create sync run: %w", err)
	}
	return id, nil
}

func (r *PostgresBackend) CompleteSyncRun(ctx context.Context, id string, outcome types.RunOutcome) error {
	query := `
		UPDATE sync_log
		SET status = $2, emails_synced = $3, emails_skipped = $4, error_message = $5, completed_at = $6
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, outcome.Status, outcome.EmailsSynced, outcome.EmailsSkipped, outcome.ErrorMessage, outcome.CompletedAt)
	if err != nil {
		return fmt.Errorf("complete sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete sync run: %w", err)
	}
	if rows == 0 {
		return ErrSyncRunNotPending
	}
	return nil
}

func (r *PostgresBackend) ListSyncRuns(ctx context.Context, userId string, limit int) ([]types.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_log WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []types.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *PostgresBackend) GetLatestSuccessfulRun(ctx context.Context, userId string, labelId *string) (*types.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_log WHERE user_id = $1 AND status = 'success'`
	args := []any{userId}
	if labelId != nil {
		query += ` AND label_id = $2`
		args = append(args, *labelId)
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	run, err := scanSyncRun(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest successful run: %w", err)
	}
	return run, nil
}
