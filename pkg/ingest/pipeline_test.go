package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahajws/amast-crm-sub000/pkg/audit"
	"github.com/wahajws/amast-crm-sub000/pkg/common"
	"github.com/wahajws/amast-crm-sub000/pkg/gmail"
	"github.com/wahajws/amast-crm-sub000/pkg/gmail/gmailtest"
	"github.com/wahajws/amast-crm-sub000/pkg/labels"
	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var testUser = &types.User{Id: "user-1"}

type staticClients struct {
	factory *gmail.Factory
	err     error
	delay   time.Duration
}

func (s *staticClients) GetAuthenticatedClient(ctx context.Context, user *types.User) (*gmail.Client, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.factory.New(ctx, user.Id, "token")
}

type harness struct {
	pipeline   *Pipeline
	backend    *repository.MemoryBackend
	srv        *gmailtest.Server
	clients    *staticClients
	reconciler *labels.Reconciler
	audit      *audit.Log
	lock       common.KeyedLock
}

func newHarness(t *testing.T, cfg types.IngestConfig) *harness {
	t.Helper()
	return newHarnessWithLock(t, cfg, common.NewLocalLock())
}

func newHarnessWithLock(t *testing.T, cfg types.IngestConfig, lock common.KeyedLock) *harness {
	t.Helper()
	srv := gmailtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddLabel("INBOX", "INBOX")
	srv.AddLabel("Label_1", "Clients")
	srv.AddLabel("Label_2", "Vendors")

	backend := repository.NewMemoryBackend()
	clients := &staticClients{factory: gmail.NewFactoryWithOptions(gmail.Options{Endpoint: srv.Endpoint()})}
	reconciler := labels.NewReconciler(backend, clients)
	auditLog := audit.NewLog(backend)
	pipeline := NewPipeline(clients, reconciler, backend, auditLog, NewLinker(backend, cfg), lock, cfg)

	_, err := reconciler.RefreshFromProvider(context.Background(), testUser)
	require.NoError(t, err)

	return &harness{
		pipeline:   pipeline,
		backend:    backend,
		srv:        srv,
		clients:    clients,
		reconciler: reconciler,
		audit:      auditLog,
		lock:       lock,
	}
}

// addMessages adds ids so the fake lists them in the given order
func (h *harness) addMessages(label string, ids ...string) {
	for i := len(ids) - 1; i >= 0; i-- {
		h.srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{
			Id:      ids[i],
			Labels:  []string{label},
			From:    fmt.Sprintf("Sender %s <%s@example.org>", ids[i], ids[i]),
			Subject: "Subject " + ids[i],
			Text:    "body " + ids[i],
		}))
	}
}

func (h *harness) runs(t *testing.T) []types.SyncRun {
	t.Helper()
	runs, err := h.audit.FindByUser(context.Background(), testUser.Id, 100)
	require.NoError(t, err)
	return runs
}

func numbered(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%02d", i+1)
	}
	return ids
}

func TestSyncLabelDedupe(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ctx := context.Background()
	h.addMessages("Label_1", "a", "b", "c")

	first, err := h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusSuccess, first.Status)
	assert.Equal(t, 3, first.EmailsSynced)
	assert.Equal(t, 0, first.EmailsSkipped)
	assert.Empty(t, first.Errors)

	second, err := h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeScheduled)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusSuccess, second.Status)
	assert.Equal(t, 0, second.EmailsSynced)
	assert.Equal(t, 3, second.EmailsSkipped)
	assert.Equal(t, 1, h.srv.GetCalls("a"), "stored messages are not fetched again")

	emails, err := h.backend.ListEmails(ctx, testUser.Id, types.EmailFilter{})
	require.NoError(t, err)
	assert.Len(t, emails, 3)

	runs := h.runs(t)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, types.SyncStatusSuccess, run.Status)
		assert.NotNil(t, run.CompletedAt)
		assert.Nil(t, run.ErrorMessage)
	}

	states, err := h.reconciler.ListLabels(ctx, testUser)
	require.NoError(t, err)
	for _, s := range states {
		if s.LabelId == "Label_1" {
			assert.NotNil(t, s.LastSyncedAt)
		}
	}
}

func TestSyncLabelStoresNormalizedMessage(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ctx := context.Background()
	received := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	h.srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{
		Id:      "rich",
		Labels:  []string{"Label_1", "STARRED", "UNREAD"},
		From:    `"Jane Doe" <Jane@Acme.com>`,
		Subject: "Quarterly review",
		Date:    received,
		Text:    "plain",
		Html:    "<p>html</p>",
		Snippet: "Quarterly...",
	}))
	h.srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{Id: "empty", Labels: []string{"Label_1"}, From: "x@y.io"}))

	result, err := h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EmailsSynced)

	rich, err := h.backend.GetEmail(ctx, testUser.Id, "rich")
	require.NoError(t, err)
	require.NotNil(t, rich)
	assert.Equal(t, "Jane Doe", rich.FromName)
	assert.Equal(t, "jane@acme.com", rich.FromEmail)
	assert.Equal(t, "Quarterly review", rich.Subject)
	assert.True(t, rich.ReceivedAt.Equal(received))
	assert.True(t, rich.IsStarred)
	assert.False(t, rich.IsRead)
	assert.Equal(t, "Label_1", rich.LabelId)
	require.NotNil(t, rich.BodyHtml)
	assert.Equal(t, "<p>html</p>", *rich.BodyHtml)

	empty, err := h.backend.GetEmail(ctx, testUser.Id, "empty")
	require.NoError(t, err)
	require.NotNil(t, empty, "messages without a body are stored, not skipped")
	assert.Nil(t, empty.BodyText)
	assert.Nil(t, empty.BodyHtml)
	assert.Equal(t, types.LinkSourceNone, empty.LinkSource)
}

func TestSyncLabelEmptyLabel(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_2", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusSuccess, result.Status)
	assert.Equal(t, 0, result.EmailsSynced)
	assert.Equal(t, 0, result.EmailsSkipped)

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusSuccess, runs[0].Status)
	require.NotNil(t, runs[0].LabelId)
	assert.Equal(t, "Label_2", *runs[0].LabelId)
}

func TestSyncLabelManualLinkPrecedence(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ctx := context.Background()
	h.backend.PutContact(types.Contact{Id: "c-auto", UserId: testUser.Id, Email: "a@example.org"})
	h.addMessages("Label_1", "a")

	_, err := h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)

	auto, err := h.backend.GetEmail(ctx, testUser.Id, "a")
	require.NoError(t, err)
	require.NotNil(t, auto.ContactId)
	assert.Equal(t, "c-auto", *auto.ContactId)
	assert.Equal(t, types.LinkSourceHeuristic, auto.LinkSource)

	manual := "c-manual"
	_, err = h.backend.SetManualLink(ctx, testUser.Id, "a", &manual, nil)
	require.NoError(t, err)

	// The message shows up in a second label too
	h.srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{Id: "a", Labels: []string{"Label_1", "Label_2"}, From: "a@example.org"}))
	for _, label := range []string{"Label_1", "Label_2"} {
		result, err := h.pipeline.SyncLabel(ctx, testUser, label, types.SyncTypeScheduled)
		require.NoError(t, err)
		assert.Equal(t, 1, result.EmailsSkipped)
	}

	after, err := h.backend.GetEmail(ctx, testUser.Id, "a")
	require.NoError(t, err)
	require.NotNil(t, after.ContactId)
	assert.Equal(t, "c-manual", *after.ContactId)
	assert.Equal(t, types.LinkSourceManual, after.LinkSource)
}

func TestSyncLabelPartialFailureAccounting(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ids := numbered(10)
	h.addMessages("Label_1", ids...)
	h.srv.FailMessage(ids[5], http.StatusInternalServerError)

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusPartial, result.Status)
	assert.Equal(t, 9, result.EmailsSynced)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "m06")

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusPartial, runs[0].Status)
	assert.Equal(t, 9, runs[0].EmailsSynced)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Contains(t, *runs[0].ErrorMessage, "m06")

	retry, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, 9, retry.EmailsSkipped, "a re-run resumes where the last one failed")
	assert.Equal(t, types.SyncStatusPartial, retry.Status)
}

func TestSyncLabelRateLimitStopsRun(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ids := numbered(5)
	h.addMessages("Label_1", ids...)
	h.srv.RateLimitMessage(ids[2])

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusPartial, result.Status)
	assert.Equal(t, 2, result.EmailsSynced)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "rate limit")
	assert.Equal(t, 0, h.srv.GetCalls(ids[3]), "no calls after the provider throttles")
}

func TestSyncLabelNotConnected(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	h.addMessages("Label_1", "a")
	h.clients.err = &types.NotConnectedError{UserId: testUser.Id}

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	assert.True(t, (&types.NotConnectedError{}).From(err))
	require.NotNil(t, result)
	assert.Equal(t, types.SyncStatusFailed, result.Status)
	assert.Equal(t, 0, result.EmailsSynced)

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusFailed, runs[0].Status)
	assert.Equal(t, 0, runs[0].EmailsSynced)

	states, err := h.reconciler.SyncingLabels(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, states)
	all, err := h.backend.ListLabelStates(context.Background(), testUser.Id)
	require.NoError(t, err)
	for _, s := range all {
		assert.Nil(t, s.LastSyncedAt, "failed runs do not mark the label synced")
	}
}

func TestSyncLabelRevokedBeforeRun(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	h.addMessages("Label_1", "a")
	h.srv.RevokeToken("token")

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	assert.True(t, (&types.RefreshFailedError{}).From(err))
	assert.Equal(t, types.SyncStatusFailed, result.Status)
}

func TestSyncLabelRevokedMidRunRecordsZeroCounts(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ctx := context.Background()
	h.addMessages("Label_1", "a", "b", "c")
	h.srv.FailMessage("b", http.StatusUnauthorized)

	result, err := h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeManual)
	assert.True(t, types.IsAuthError(err))
	assert.Equal(t, types.SyncStatusFailed, result.Status)
	assert.Equal(t, 0, result.EmailsSynced)
	assert.Equal(t, 0, result.EmailsSkipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "message b")

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusFailed, runs[0].Status)
	assert.Equal(t, 0, runs[0].EmailsSynced)
	assert.Equal(t, 0, runs[0].EmailsSkipped)

	exists, err := h.backend.EmailExists(ctx, testUser.Id, "a")
	require.NoError(t, err)
	assert.True(t, exists, "messages stored before the abort are kept")
	assert.Equal(t, 0, h.srv.GetCalls("c"))
}

func TestSyncLabelListFailures(t *testing.T) {
	t.Run("first page fails the run", func(t *testing.T) {
		h := newHarness(t, types.IngestConfig{PageSize: 2})
		h.addMessages("Label_1", numbered(5)...)
		h.srv.FailListPage(0, http.StatusServiceUnavailable)

		result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
		var transportErr *types.ProviderTransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, http.StatusServiceUnavailable, transportErr.StatusCode)
		assert.Equal(t, types.SyncStatusFailed, result.Status)
		assert.Equal(t, 0, result.EmailsSynced)
	})

	t.Run("later page keeps earlier work", func(t *testing.T) {
		h := newHarness(t, types.IngestConfig{PageSize: 2})
		h.addMessages("Label_1", numbered(5)...)
		h.srv.FailListPage(1, http.StatusInternalServerError)

		result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
		require.NoError(t, err)
		assert.Equal(t, types.SyncStatusPartial, result.Status)
		assert.Equal(t, 2, result.EmailsSynced)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "list page 2")
	})
}

func TestSyncLabelPageCeiling(t *testing.T) {
	h := newHarness(t, types.IngestConfig{PageSize: 2, MaxPages: 2})
	h.addMessages("Label_1", numbered(7)...)

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusSuccess, result.Status)
	assert.Equal(t, 4, result.EmailsSynced)
	assert.Equal(t, 2, h.srv.ListCalls())
}

func TestSyncLabelLockContention(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ctx := context.Background()
	key := common.Keys.GmailSyncLock(testUser.Id, "Label_1")
	token, err := h.lock.Acquire(ctx, key, common.RedisLockOptions{TtlS: 60})
	require.NoError(t, err)

	result, err := h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeManual)
	assert.Nil(t, result)
	var inProgress *types.SyncInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, "Label_1", inProgress.LabelId)
	assert.Empty(t, h.runs(t), "contended runs are not recorded")

	require.NoError(t, h.lock.Release(key, token))
	_, err = h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
}

func TestSyncLabelWithRedisLock(t *testing.T) {
	rdb, err := repository.NewRedisClientForTest()
	require.NoError(t, err)
	h := newHarnessWithLock(t, types.IngestConfig{}, common.NewRedisLock(rdb))
	h.addMessages("Label_1", "a", "b")

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EmailsSynced)

	exists, err := rdb.Exists(context.Background(), common.Keys.GmailSyncLock(testUser.Id, "Label_1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists, "lock is released after the run")
}

func TestSyncLabelRequiresLabel(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	_, err := h.pipeline.SyncLabel(context.Background(), testUser, "", types.SyncTypeManual)
	assert.True(t, (&types.ValidationError{}).From(err))
}

func TestSyncAllSyncingLabelsIsolatesFailures(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	ctx := context.Background()
	h.addMessages("Label_1", "a", "b")
	h.addMessages("Label_2", "c")
	_, err := h.reconciler.SetSyncing(ctx, testUser, []string{"Label_1", "Label_2"}, true)
	require.NoError(t, err)

	key := common.Keys.GmailSyncLock(testUser.Id, "Label_1")
	_, err = h.lock.Acquire(ctx, key, common.RedisLockOptions{TtlS: 60})
	require.NoError(t, err)

	results, err := h.pipeline.SyncAllSyncingLabels(ctx, testUser, types.SyncTypeScheduled)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byLabel := map[string]*types.SyncResult{}
	for _, r := range results {
		byLabel[r.LabelId] = r
	}
	assert.Equal(t, types.SyncStatusFailed, byLabel["Label_1"].Status)
	assert.Contains(t, byLabel["Label_1"].Errors[0], "in progress")
	assert.Equal(t, types.SyncStatusSuccess, byLabel["Label_2"].Status)
	assert.Equal(t, 1, byLabel["Label_2"].EmailsSynced)

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncTypeScheduled, runs[0].SyncType)
}

func TestSyncAllSyncingLabelsNoneSelected(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	results, err := h.pipeline.SyncAllSyncingLabels(context.Background(), testUser, types.SyncTypeManual)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEndToEndScenario(t *testing.T) {
	srv := gmailtest.NewServer()
	defer srv.Close()
	srv.AddLabel("INBOX", "INBOX")
	srv.AddLabel("Label_X", "Acme")
	srv.AddMessage(gmailtest.NewMessage(gmailtest.MessageFixture{Id: "x1", Labels: []string{"Label_X"}, From: "ceo@acme.com", Html: "<p>hi</p>"}))

	backend := repository.NewMemoryBackend()
	backend.PutAccount(types.Account{Id: "acc-acme", UserId: testUser.Id, Name: "Acme", Website: "https://www.acme.com"})
	clients := &staticClients{factory: gmail.NewFactoryWithOptions(gmail.Options{Endpoint: srv.Endpoint()})}
	reconciler := labels.NewReconciler(backend, clients)
	auditLog := audit.NewLog(backend)
	pipeline := NewPipeline(clients, reconciler, backend, auditLog, NewLinker(backend, types.IngestConfig{}), common.NewLocalLock(), types.IngestConfig{})
	ctx := context.Background()

	states, err := reconciler.ListLabels(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, s := range states {
		assert.False(t, s.IsSyncing)
	}

	_, err = reconciler.SetSyncing(ctx, testUser, []string{"Label_X"}, true)
	require.NoError(t, err)
	states, err = reconciler.ListLabels(ctx, testUser)
	require.NoError(t, err)
	for _, s := range states {
		assert.Equal(t, s.LabelId == "Label_X", s.IsSyncing)
	}

	result, err := pipeline.SyncLabel(ctx, testUser, "Label_X", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusSuccess, result.Status)

	runs, err := auditLog.FindByUser(ctx, testUser.Id, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusSuccess, runs[0].Status)

	timeline, err := backend.ListEmails(ctx, testUser.Id, types.EmailFilter{AccountId: "acc-acme"})
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, ConfidenceDomain, timeline[0].LinkConfidence)
}

func TestSyncLabelCancelledContextStillClosesRun(t *testing.T) {
	h := newHarness(t, types.IngestConfig{})
	h.addMessages("Label_1", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.pipeline.SyncLabel(ctx, testUser, "Label_1", types.SyncTypeManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || result != nil)

	for _, run := range h.runs(t) {
		assert.True(t, run.Status.IsTerminal())
	}
}

// leaseLock wraps a LocalLock and fails refreshes on demand
type leaseLock struct {
	*common.LocalLock
	mu         sync.Mutex
	refreshErr error
	refreshes  int
	released   []string
	acquired   []string
}

func (l *leaseLock) Acquire(ctx context.Context, key string, opts common.RedisLockOptions) (string, error) {
	token, err := l.LocalLock.Acquire(ctx, key, opts)
	if err == nil {
		l.mu.Lock()
		l.acquired = append(l.acquired, token)
		l.mu.Unlock()
	}
	return token, err
}

func (l *leaseLock) Refresh(ctx context.Context, key, token string, opts common.RedisLockOptions) error {
	l.mu.Lock()
	l.refreshes++
	err := l.refreshErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.LocalLock.Refresh(ctx, key, token, opts)
}

func (l *leaseLock) Release(key, token string) error {
	l.mu.Lock()
	l.released = append(l.released, token)
	l.mu.Unlock()
	return l.LocalLock.Release(key, token)
}

// waitingClients blocks until the run context ends
type waitingClients struct{}

func (waitingClients) GetAuthenticatedClient(ctx context.Context, user *types.User) (*gmail.Client, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, errors.New("run was not stopped")
	}
}

func TestSyncLabelReleasesItsOwnLock(t *testing.T) {
	lock := &leaseLock{LocalLock: common.NewLocalLock()}
	h := newHarnessWithLock(t, types.IngestConfig{}, lock)
	h.addMessages("Label_1", "a")

	_, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)

	require.Len(t, lock.acquired, 1)
	assert.Equal(t, lock.acquired, lock.released)
}

func TestSyncLabelStopsWhenLeaseIsLost(t *testing.T) {
	lock := &leaseLock{LocalLock: common.NewLocalLock(), refreshErr: common.ErrLockNotHeld}
	cfg := types.IngestConfig{LockTTL: 30 * time.Millisecond}
	backend := repository.NewMemoryBackend()
	reconciler := labels.NewReconciler(backend, waitingClients{})
	auditLog := audit.NewLog(backend)
	pipeline := NewPipeline(waitingClients{}, reconciler, backend, auditLog, NewLinker(backend, cfg), lock, cfg)

	result, err := pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, types.SyncStatusFailed, result.Status)
	assert.GreaterOrEqual(t, lock.refreshes, 1)

	runs, err := auditLog.FindByUser(context.Background(), testUser.Id, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusFailed, runs[0].Status, "the run is still closed")
}

func TestSyncLabelKeepsLeaseDuringLongRun(t *testing.T) {
	lock := &leaseLock{LocalLock: common.NewLocalLock()}
	cfg := types.IngestConfig{LockTTL: 30 * time.Millisecond}
	h := newHarnessWithLock(t, cfg, lock)
	h.addMessages("Label_1", "a")
	h.clients.delay = 100 * time.Millisecond

	result, err := h.pipeline.SyncLabel(context.Background(), testUser, "Label_1", types.SyncTypeManual)
	require.NoError(t, err)
	assert.Equal(t, types.SyncStatusSuccess, result.Status)
	assert.GreaterOrEqual(t, lock.refreshes, 1)
}
