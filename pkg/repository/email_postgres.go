package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const emailColumns = `id, user_id, provider_message_id, thread_id, label_id, from_name, from_email, subject, snippet,
	body_text, body_html, received_at, is_starred, is_read, contact_id, account_id, link_source, link_confidence, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(s rowScanner) (*types.IngestedEmail, error) {
	var e types.IngestedEmail
	err := s.Scan(
		&e.Id, &e.UserId, &e.ProviderMessageId, &e.ThreadId, &e.LabelId, &e.FromName, &e.FromEmail, &e.Subject, &e.Snippet,
		&e.BodyText, &e.BodyHtml, &e.ReceivedAt, &e.IsStarred, &e.IsRead, &e.ContactId, &e.AccountId, &e.LinkSource, &e.LinkConfidence, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresBackend) EmailExists(ctx context.Context, userId, providerMessageId string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM email WHERE user_id = $1 AND provider_message_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userId, providerMessageId).Scan(&exists); err != nil {
		return false, fmt.Errorf("email exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresBackend) InsertEmail(ctx context.Context, e *types.IngestedEmail) (bool, error) {
	query := `
		INSERT INTO email (user_id, provider_message_id, thread_id, label_id, from_name, from_email, subject, snippet,
			body_text, body_html, received_at, is_starred, is_read, contact_id, account_id, link_source, link_confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id, provider_message_id) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		e.UserId, e.ProviderMessageId, e.ThreadId, e.LabelId, e.FromName, e.FromEmail, e.Subject, e.Snippet,
		e.BodyText, e.BodyHtml, e.ReceivedAt, e.IsStarred, e.IsRead, e.ContactId, e.AccountId, e.LinkSource, e.LinkConfidence,
	).Scan(&e.Id, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert email: %w", err)
	}
	return true, nil
}

func (r *PostgresBackend) GetEmail(ctx context.Context, userId, providerMessageId string) (*types.IngestedEmail, error) {
	query := `SELECT ` + emailColumns + ` FROM email WHERE user_id = $1 AND provider_message_id = $2`

	e, err := scanEmail(r.db.QueryRowContext(ctx, query, userId, providerMessageId))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return e, nil
}

func (r *PostgresBackend) ListEmails(ctx context.Context, userId string, filter types.EmailFilter) ([]types.IngestedEmail, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userId}

	if filter.ContactId != "" {
		args = append(args, filter.ContactId)
		conditions = append(conditions, fmt.Sprintf("contact_id = $%d", len(args)))
	}
	if filter.AccountId != "" {
		args = append(args, filter.AccountId)
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.LabelId != "" {
		args = append(args, filter.LabelId)
		conditions = append(conditions, fmt.Sprintf("label_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM email WHERE %s ORDER BY received_at DESC LIMIT $%d`,
		emailColumns, strings.Join(conditions, " AND "), len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var emails []types.IngestedEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

func (r *PostgresBackend) SetManualLink(ctx context.Context, userId, providerMessageId string, contactId, accountId *string) (*types.IngestedEmail, error) {
	query := `
		UPDATE email SET contact_id = $3, account_id = $4, link_source = 'manual', link_confidence = 1
		WHERE user_id = $1 AND provider_message_id = $2
		RETURNING ` + emailColumns

	e, err := scanEmail(r.db.QueryRowContext(ctx, query, userId, providerMessageId, contactId, accountId))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("set manual link: %w", err)
	}
	return e, nil
}
