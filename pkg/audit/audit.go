package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	maxErrorMessageLen = 2000
)

// Log is the append-only record of sync runs. A run is opened pending and
// completed exactly once; completed rows never change.
type Log struct {
	store repository.SyncRunRepository
	nowFn func() time.Time
}

func NewLog(store repository.SyncRunRepository) *Log {
	return &Log{store: store, nowFn: time.Now}
}

// Open records a pending run and returns its id
func (l *Log) Open(ctx context.Context, run *types.SyncRun) (string, error) {
	if run.UserId == "" {
		return "", &types.ValidationError{Field: "userId", Message: "required"}
	}

	pending := *run
	pending.Status = types.SyncStatusPending
	pending.EmailsSynced = 0
	pending.EmailsSkipped = 0
	pending.ErrorMessage = nil
	pending.CompletedAt = nil
	if pending.SyncType == "" {
		pending.SyncType = types.SyncTypeManual
	}
	if pending.StartedAt.IsZero() {
		pending.StartedAt = l.nowFn()
	}

	id, err := l.store.CreateSyncRun(ctx, &pending)
	if err != nil {
		return "", fmt.Errorf("create sync run: %w", err)
	}
	return id, nil
}

// Complete moves the run to result's terminal status
func (l *Log) Complete(ctx context.Context, id string, result *types.SyncResult) error {
	if !result.Status.IsTerminal() {
		return &types.ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a terminal status", result.Status)}
	}

	outcome := types.RunOutcome{
		Status:        result.Status,
		EmailsSynced:  result.EmailsSynced,
		EmailsSkipped: result.EmailsSkipped,
		ErrorMessage:  ErrorMessage(result.Errors),
		CompletedAt:   l.nowFn(),
	}

	if err := l.store.CompleteSyncRun(ctx, id, outcome); err != nil {
		if errors.Is(err, repository.ErrSyncRunNotPending) {
			log.Warn().Str("run_id", id).Msg("sync run already completed")
		}
		return fmt.Errorf("complete sync run %s: %w", id, err)
	}
	return nil
}

// RecordRun writes a run in one step. Terminal runs are opened and
// completed immediately.
func (l *Log) RecordRun(ctx context.Context, run *types.SyncRun) (string, error) {
	id, err := l.Open(ctx, run)
	if err != nil {
		return "", err
	}
	if !run.Status.IsTerminal() {
		return id, nil
	}

	result := &types.SyncResult{
		Status:        run.Status,
		EmailsSynced:  run.EmailsSynced,
		EmailsSkipped: run.EmailsSkipped,
	}
	if run.ErrorMessage != nil {
		result.Errors = []string{*run.ErrorMessage}
	}
	return id, l.Complete(ctx, id, result)
}

// FindByUser returns the newest runs first
func (l *Log) FindByUser(ctx context.Context, userId string, limit int) ([]types.SyncRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	runs, err := l.store.ListSyncRuns(ctx, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}

// FindLatestSuccess returns the newest successful run, optionally for one
// label. It returns nil when there is none.
func (l *Log) FindLatestSuccess(ctx context.Context, userId string, labelId *string) (*types.SyncRun, error) {
	run, err := l.store.GetLatestSuccessfulRun(ctx, userId, labelId)
	if err != nil {
		return nil, fmt.Errorf("get latest successful run: %w", err)
	}
	return run, nil
}

// ErrorMessage joins run errors for storage, nil when there are none
func ErrorMessage(errs []string) *string {
	if len(errs) == 0 {
		return nil
	}
	msg := strings.Join(errs, "; ")
	if len(msg) > maxErrorMessageLen {
		msg = truncate(msg, maxErrorMessageLen)
	}
	return &msg
}

func truncate(s string, n int) string {
	const suffix = "..."
	cut := n - len(suffix)
	// back off to a rune boundary
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + suffix
}
