package types

import "time"

// SyncType is what triggered a run
type SyncType string

const (
	SyncTypeManual    SyncType = "manual"
	SyncTypeScheduled SyncType = "scheduled"
)

// SyncStatus is the lifecycle state of a run
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// IsTerminal returns true once a run has been completed
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusPartial || s == SyncStatusFailed
}

// SyncRun is one row of the sync audit log. Completed rows are immutable.
type SyncRun struct {
	Id            string     `db:"id" json:"id"`
	UserId        string     `db:"user_id" json:"userId"`
	LabelId       *string    `db:"label_id" json:"labelId"` // nil for account-wide runs
	SyncType      SyncType   `db:"sync_type" json:"syncType"`
	Status        SyncStatus `db:"status" json:"status"`
	EmailsSynced  int        `db:"emails_synced" json:"emailsSynced"`
	EmailsSkipped int        `db:"emails_skipped" json:"emailsSkipped"`
	ErrorMessage  *string    `db:"error_message" json:"errorMessage"`
	StartedAt     time.Time  `db:"started_at" json:"startedAt"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt"`
}

// SyncResult is the outcome of syncing one label
type SyncResult struct {
	LabelId       string     `json:"labelId"`
	RunId         string     `json:"runId"`
	Status        SyncStatus `json:"status"`
	EmailsSynced  int        `json:"emailsSynced"`
	EmailsSkipped int        `json:"emailsSkipped"`
	Errors        []string   `json:"errors"`
}

// RunOutcome is what a completed run records
type RunOutcome struct {
	Status        SyncStatus
	EmailsSynced  int
	EmailsSkipped int
	ErrorMessage  *string
	CompletedAt   time.Time
}
