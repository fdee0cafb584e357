package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upGmailSync, downGmailSync)
}

func upGmailSync(tx *sql.Tx) error {
	if _, err := tx.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return err
	}

	createStatements := []string{
		`CREATE TYPE label_type AS ENUM ('system', 'user');`,
		`CREATE TYPE link_source AS ENUM ('none', 'heuristic', 'manual');`,
		`CREATE TYPE sync_type AS ENUM ('manual', 'scheduled');`,
		`CREATE TYPE sync_status AS ENUM ('pending', 'success', 'partial', 'failed');`,

		// One credential per CRM user
		`CREATE TABLE IF NOT EXISTS gmail_credential (
			user_id VARCHAR(255) PRIMARY KEY,
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			token_expiry TIMESTAMP WITH TIME ZONE NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			connected_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS label_sync (
			user_id VARCHAR(255) NOT NULL,
			label_id VARCHAR(255) NOT NULL,
			label_name VARCHAR(1024) NOT NULL,
			label_type label_type NOT NULL DEFAULT 'user',
			is_syncing BOOLEAN NOT NULL DEFAULT FALSE,
			last_synced_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, label_id)
		);`,

		`CREATE TABLE IF NOT EXISTS email (
			id UUID DEFAULT uuid_generate_v4() PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			provider_message_id VARCHAR(255) NOT NULL,
			thread_id VARCHAR(255) NOT NULL DEFAULT '',
			label_id VARCHAR(255) NOT NULL DEFAULT '',
			from_name VARCHAR(1024) NOT NULL DEFAULT '',
			from_email VARCHAR(1024) NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			snippet TEXT NOT NULL DEFAULT '',
			body_text TEXT,
			body_html TEXT,
			received_at TIMESTAMP WITH TIME ZONE NOT NULL,
			is_starred BOOLEAN NOT NULL DEFAULT FALSE,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			contact_id VARCHAR(255),
			account_id VARCHAR(255),
			link_source link_source NOT NULL DEFAULT 'none',
			link_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, provider_message_id)
		);`,

		`CREATE TABLE IF NOT EXISTS sync_log (
			id UUID DEFAULT uuid_generate_v4() PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			label_id VARCHAR(255),
			sync_type sync_type NOT NULL DEFAULT 'manual',
			status sync_status NOT NULL DEFAULT 'pending',
			emails_synced INTEGER NOT NULL DEFAULT 0,
			emails_skipped INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP WITH TIME ZONE
		);`,

		`CREATE INDEX idx_label_sync_syncing ON label_sync(user_id) WHERE is_syncing;`,
		`CREATE INDEX idx_email_contact ON email(user_id, contact_id, received_at DESC);`,
		`CREATE INDEX idx_email_account ON email(user_id, account_id, received_at DESC);`,
		`CREATE INDEX idx_sync_log_user_started ON sync_log(user_id, started_at DESC);`,
	}

	for _, stmt := range createStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downGmailSync(tx *sql.Tx) error {
	dropStatements := []string{
		"DROP TABLE IF EXISTS sync_log;",
		"DROP TABLE IF EXISTS email;",
		"DROP TABLE IF EXISTS label_sync;",
		"DROP TABLE IF EXISTS gmail_credential;",
		"DROP TYPE IF EXISTS sync_status;",
		"DROP TYPE IF EXISTS sync_type;",
		"DROP TYPE IF EXISTS link_source;",
		"DROP TYPE IF EXISTS label_type;",
	}

	for _, stmt := range dropStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
