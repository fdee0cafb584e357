package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upCrmDirectory, downCrmDirectory)
}

// The CRM owns account and contact. These statements only create the
// columns the linker reads when the tables are not already present.
func upCrmDirectory(tx *sql.Tx) error {
	createStatements := []string{
		`CREATE TABLE IF NOT EXISTS account (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			name VARCHAR(1024) NOT NULL DEFAULT '',
			domain VARCHAR(255) NOT NULL DEFAULT '',
			website VARCHAR(1024) NOT NULL DEFAULT ''
		);`,

		`CREATE TABLE IF NOT EXISTS contact (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			account_id VARCHAR(255),
			name VARCHAR(1024) NOT NULL DEFAULT '',
			email VARCHAR(1024) NOT NULL DEFAULT ''
		);`,

		`CREATE INDEX IF NOT EXISTS idx_contact_user_email ON contact(user_id, lower(email));`,
		`CREATE INDEX IF NOT EXISTS idx_account_user_domain ON account(user_id, lower(domain));`,
	}

	for _, stmt := range createStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downCrmDirectory(tx *sql.Tx) error {
	dropStatements := []string{
		"DROP INDEX IF EXISTS idx_account_user_domain;",
		"DROP INDEX IF EXISTS idx_contact_user_email;",
	}

	for _, stmt := range dropStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
