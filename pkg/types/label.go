package types

import "time"

// LabelType classifies a Gmail label
type LabelType string

const (
	LabelTypeSystem LabelType = "system"
	LabelTypeUser   LabelType = "user"
)

// ProviderLabel is a label as reported by Gmail
type ProviderLabel struct {
	Id   string    `json:"id"`
	Name string    `json:"name"`
	Type LabelType `json:"type"`
}

// LabelSyncState is the locally persisted sync preference for one label.
// Rows are keyed by (user_id, label_id).
type LabelSyncState struct {
	UserId       string     `db:"user_id" json:"-"`
	LabelId      string     `db:"label_id" json:"id"`
	LabelName    string     `db:"label_name" json:"name"`
	LabelType    LabelType  `db:"label_type" json:"type"`
	IsSyncing    bool       `db:"is_syncing" json:"isSyncing"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"lastSyncedAt"`
	CreatedAt    time.Time  `db:"created_at" json:"-"`
	UpdatedAt    time.Time  `db:"updated_at" json:"-"`
}
