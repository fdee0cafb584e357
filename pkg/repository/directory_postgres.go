package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// hostExpr reduces a stored domain or website column to its bare host
const hostExpr = `regexp_replace(lower(%s), '^([a-z]+://)?(www\.)?([^/:?#]+).*$', '\3')`

func (r *PostgresBackend) FindContactByEmail(ctx context.Context, userId, email string) (*types.Contact, error) {
	query := `
		SELECT id, user_id, account_id, name, email FROM contact
		WHERE user_id = $1 AND lower(email) = lower($2)
		ORDER BY id LIMIT 1
	`
	return r.getContact(ctx, query, userId, email)
}

func (r *PostgresBackend) GetContact(ctx context.Context, userId, contactId string) (*types.Contact, error) {
	query := `SELECT id, user_id, account_id, name, email FROM contact WHERE user_id = $1 AND id = $2`
	return r.getContact(ctx, query, userId, contactId)
}

func (r *PostgresBackend) FindAccountByDomain(ctx context.Context, userId, domain string) (*types.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, name, domain, website FROM account
		WHERE user_id = $1 AND (%s = $2 OR %s = $2)
		ORDER BY id LIMIT 1
	`, fmt.Sprintf(hostExpr, "domain"), fmt.Sprintf(hostExpr, "website"))
	return r.getAccount(ctx, query, userId, types.NormalizeDomain(domain))
}

func (r *PostgresBackend) GetAccount(ctx context.Context, userId, accountId string) (*types.Account, error) {
	query := `SELECT id, user_id, name, domain, website FROM account WHERE user_id = $1 AND id = $2`
	return r.getAccount(ctx, query, userId, accountId)
}

func (r *PostgresBackend) getContact(ctx context.Context, query string, args ...any) (*types.Contact, error) {
	var c types.Contact
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&c.Id, &c.UserId, &c.AccountId, &c.Name, &c.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}

func (r *PostgresBackend) getAccount(ctx context.Context, query string, args ...any) (*types.Account, error) {
	var a types.Account
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&a.Id, &a.UserId, &a.Name, &a.Domain, &a.Website)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}
