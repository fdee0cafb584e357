package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var ErrSyncRunNotPending = errors.New("sync run not found or already completed")

// CredentialRepository stores one Gmail credential per user
type CredentialRepository interface {
	GetCredential(ctx context.Context, userId string) (*types.Credential, error)
	// SaveAuthorization is the only path that writes a refresh token
	SaveAuthorization(ctx context.Context, userId string, grant *types.TokenGrant) (*types.Credential, error)
	// UpdateAccessToken replaces token and expiry together. It does not apply
	// when the stored expiry is newer, and reports whether the row changed.
	UpdateAccessToken(ctx context.Context, userId, accessToken string, expiry time.Time) (bool, error)
	DeleteCredential(ctx context.Context, userId string) error
	ListConnectedUsers(ctx context.Context) ([]string, error)
}

// LabelSyncRepository stores per-label sync preferences keyed by (user, label)
type LabelSyncRepository interface {
	ListLabelStates(ctx context.Context, userId string) ([]types.LabelSyncState, error)
	// UpsertLabels inserts unseen labels with is_syncing=false and only
	// refreshes name and type on existing rows
	UpsertLabels(ctx context.Context, userId string, labels []types.ProviderLabel) error
	SetLabelsSyncing(ctx context.Context, userId string, labelIds []string, isSyncing bool) (int, error)
	ListSyncingLabels(ctx context.Context, userId string) ([]types.LabelSyncState, error)
	SetLabelLastSynced(ctx context.Context, userId, labelId string, at time.Time) error
}

// EmailRepository stores ingested messages, unique per (user, provider message)
type EmailRepository interface {
	EmailExists(ctx context.Context, userId, providerMessageId string) (bool, error)
	// InsertEmail never updates an existing row. It returns false when the
	// message was already stored.
	InsertEmail(ctx context.Context, email *types.IngestedEmail) (bool, error)
	GetEmail(ctx context.Context, userId, providerMessageId string) (*types.IngestedEmail, error)
	ListEmails(ctx context.Context, userId string, filter types.EmailFilter) ([]types.IngestedEmail, error)
	SetManualLink(ctx context.Context, userId, providerMessageId string, contactId, accountId *string) (*types.IngestedEmail, error)
}

// SyncRunRepository is the append-only sync audit log
type SyncRunRepository interface {
	CreateSyncRun(ctx context.Context, run *types.SyncRun) (string, error)
	// CompleteSyncRun moves a pending run to a terminal state exactly once
	CompleteSyncRun(ctx context.Context, id string, outcome types.RunOutcome) error
	ListSyncRuns(ctx context.Context, userId string, limit int) ([]types.SyncRun, error)
	GetLatestSuccessfulRun(ctx context.Context, userId string, labelId *string) (*types.SyncRun, error)
}

// EntityDirectory is the read-only view of CRM accounts and contacts
type EntityDirectory interface {
	FindContactByEmail(ctx context.Context, userId, email string) (*types.Contact, error)
	FindAccountByDomain(ctx context.Context, userId, domain string) (*types.Account, error)
	GetContact(ctx context.Context, userId, contactId string) (*types.Contact, error)
	GetAccount(ctx context.Context, userId, accountId string) (*types.Account, error)
}

// BackendRepository is the main repository for persistent data
type BackendRepository interface {
	CredentialRepository
	LabelSyncRepository
	EmailRepository
	SyncRunRepository
	EntityDirectory

	Ping(ctx context.Context) error
	Close() error
}
