package audit

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

func strPtr(s string) *string { return &s }

func TestOpenAndCompleteOnce(t *testing.T) {
	l := NewLog(repository.NewMemoryBackend())
	ctx := context.Background()

	id, err := l.Open(ctx, &types.SyncRun{UserId: "u1", LabelId: strPtr("Label_1"), Status: types.SyncStatusSuccess})
	require.NoError(t, err)

	runs, err := l.FindByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusPending, runs[0].Status, "open always starts pending")
	assert.Equal(t, types.SyncTypeManual, runs[0].SyncType)
	assert.False(t, runs[0].StartedAt.IsZero())
	assert.Nil(t, runs[0].CompletedAt)

	err = l.Complete(ctx, id, &types.SyncResult{Status: types.SyncStatusPartial, EmailsSynced: 9, Errors: []string{"message m6: boom"}})
	require.NoError(t, err)

	err = l.Complete(ctx, id, &types.SyncResult{Status: types.SyncStatusSuccess, EmailsSynced: 10})
	assert.ErrorIs(t, err, repository.ErrSyncRunNotPending)

	runs, err = l.FindByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusPartial, runs[0].Status)
	assert.Equal(t, 9, runs[0].EmailsSynced)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "message m6: boom", *runs[0].ErrorMessage)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestCompleteRejectsPendingStatus(t *testing.T) {
	l := NewLog(repository.NewMemoryBackend())
	id, err := l.Open(context.Background(), &types.SyncRun{UserId: "u1"})
	require.NoError(t, err)

	err = l.Complete(context.Background(), id, &types.SyncResult{Status: types.SyncStatusPending})
	assert.True(t, (&types.ValidationError{}).From(err))
}

func TestOpenRequiresUser(t *testing.T) {
	_, err := NewLog(repository.NewMemoryBackend()).Open(context.Background(), &types.SyncRun{})
	assert.True(t, (&types.ValidationError{}).From(err))
}

func TestRecordRunAndFindLatestSuccess(t *testing.T) {
	l := NewLog(repository.NewMemoryBackend())
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	record := func(label string, status types.SyncStatus, offset time.Duration) string {
		run := &types.SyncRun{UserId: "u1", LabelId: strPtr(label), SyncType: types.SyncTypeScheduled, Status: status, StartedAt: base.Add(offset)}
		if status == types.SyncStatusFailed {
			run.ErrorMessage = strPtr("gmail not connected for user: u1")
		}
		id, err := l.RecordRun(ctx, run)
		require.NoError(t, err)
		return id
	}

	oldA := record("A", types.SyncStatusSuccess, time.Hour)
	newB := record("B", types.SyncStatusSuccess, 2*time.Hour)
	record("A", types.SyncStatusFailed, 3*time.Hour)
	record("B", types.SyncStatusPending, 4*time.Hour)

	latest, err := l.FindLatestSuccess(ctx, "u1", nil)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newB, latest.Id)

	latest, err = l.FindLatestSuccess(ctx, "u1", strPtr("A"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, oldA, latest.Id)

	latest, err = l.FindLatestSuccess(ctx, "u2", nil)
	require.NoError(t, err)
	assert.Nil(t, latest)

	runs, err := l.FindByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, types.SyncStatusPending, runs[0].Status, "newest first")
	assert.Equal(t, types.SyncStatusFailed, runs[1].Status)
	require.NotNil(t, runs[1].ErrorMessage)
}

func TestErrorMessage(t *testing.T) {
	assert.Nil(t, ErrorMessage(nil))
	assert.Equal(t, "a; b", *ErrorMessage([]string{"a", "b"}))

	long := ErrorMessage([]string{strings.Repeat("é", maxErrorMessageLen)})
	assert.LessOrEqual(t, len(*long), maxErrorMessageLen)
	assert.True(t, utf8.ValidString(*long))
	assert.True(t, strings.HasSuffix(*long, "..."))
}
