package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// MemoryBackend implements BackendRepository using in-memory storage.
// This is used for local mode where we don't have Postgres.
type MemoryBackend struct {
	mu          sync.RWMutex
	credentials map[string]*types.Credential
	labels      map[string]map[string]*types.LabelSyncState // userId -> labelId
	emails      map[string]map[string]*types.IngestedEmail  // userId -> providerMessageId
	runs        map[string]*types.SyncRun
	accounts    map[string]*types.Account
	contacts    map[string]*types.Contact
	nowFn       func() time.Time
}

// NewMemoryBackend creates a new in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		credentials: make(map[string]*types.Credential),
		labels:      make(map[string]map[string]*types.LabelSyncState),
		emails:      make(map[string]map[string]*types.IngestedEmail),
		runs:        make(map[string]*types.SyncRun),
		accounts:    make(map[string]*types.Account),
		contacts:    make(map[string]*types.Contact),
		nowFn:       time.Now,
	}
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }
func (m *MemoryBackend) Close() error                   { return nil }

// ----------------------------------------------------------------------------
// Credentials
// ----------------------------------------------------------------------------

func (m *MemoryBackend) GetCredential(ctx context.Context, userId string) (*types.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[userId]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (m *MemoryBackend) SaveAuthorization(ctx context.Context, userId string, grant *types.TokenGrant) (*types.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	c, ok := m.credentials[userId]
	if !ok {
		c = &types.Credential{UserId: userId}
		m.credentials[userId] = c
	}
	c.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		c.RefreshToken = grant.RefreshToken
	}
	c.TokenExpiry = grant.Expiry
	c.Scope = grant.Scope
	c.ConnectedAt = now
	c.UpdatedAt = now

	copied := *c
	return &copied, nil
}

func (m *MemoryBackend) UpdateAccessToken(ctx context.Context, userId, accessToken string, expiry time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.credentials[userId]
	if !ok || expiry.Before(c.TokenExpiry) {
		return false, nil
	}
	c.AccessToken = accessToken
	c.TokenExpiry = expiry
	c.UpdatedAt = m.nowFn()
	return true, nil
}

func (m *MemoryBackend) DeleteCredential(ctx context.Context, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.credentials, userId)
	return nil
}

func (m *MemoryBackend) ListConnectedUsers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var userIds []string
	for id, c := range m.credentials {
		if c.RefreshToken != "" {
			userIds = append(userIds, id)
		}
	}
	sort.Strings(userIds)
	return userIds, nil
}

// ----------------------------------------------------------------------------
// Labels
// ----------------------------------------------------------------------------

func (m *MemoryBackend) ListLabelStates(ctx context.Context, userId string) ([]types.LabelSyncState, error) {
	return m.listLabels(userId, func(*types.LabelSyncState) bool { return true }), nil
}

func (m *MemoryBackend) ListSyncingLabels(ctx context.Context, userId string) ([]types.LabelSyncState, error) {
	return m.listLabels(userId, func(l *types.LabelSyncState) bool { return l.IsSyncing }), nil
}

func (m *MemoryBackend) listLabels(userId string, keep func(*types.LabelSyncState) bool) []types.LabelSyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.LabelSyncState
	for _, l := range m.labels[userId] {
		if keep(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LabelType != out[j].LabelType {
			return out[i].LabelType < out[j].LabelType
		}
		return out[i].LabelName < out[j].LabelName
	})
	return out
}

func (m *MemoryBackend) UpsertLabels(ctx context.Context, userId string, labels []types.ProviderLabel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byId, ok := m.labels[userId]
	if !ok {
		byId = make(map[string]*types.LabelSyncState)
		m.labels[userId] = byId
	}

	now := m.nowFn()
	for _, l := range labels {
		existing, ok := byId[l.Id]
		if !ok {
			byId[l.Id] = &types.LabelSyncState{
				UserId:    userId,
				LabelId:   l.Id,
				LabelName: l.Name,
				LabelType: l.Type,
				CreatedAt: now,
				UpdatedAt: now,
			}
			continue
		}
		if existing.LabelName != l.Name || existing.LabelType != l.Type {
			existing.LabelName = l.Name
			existing.LabelType = l.Type
			existing.UpdatedAt = now
		}
	}
	return nil
}

func (m *MemoryBackend) SetLabelsSyncing(ctx context.Context, userId string, labelIds []string, isSyncing bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := 0
	for _, id := range labelIds {
		if l, ok := m.labels[userId][id]; ok {
			l.IsSyncing = isSyncing
			l.UpdatedAt = m.nowFn()
			updated++
		}
	}
	return updated, nil
}

func (m *MemoryBackend) SetLabelLastSynced(ctx context.Context, userId, labelId string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.labels[userId][labelId]; ok {
		t := at
		l.LastSyncedAt = &t
		l.UpdatedAt = m.nowFn()
	}
	return nil
}

// ----------------------------------------------------------------------------
// Emails
// ----------------------------------------------------------------------------

func (m *MemoryBackend) EmailExists(ctx context.Context, userId, providerMessageId string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[userId][providerMessageId]
	return ok, nil
}

func (m *MemoryBackend) InsertEmail(ctx context.Context, e *types.IngestedEmail) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byId, ok := m.emails[e.UserId]
	if !ok {
		byId = make(map[string]*types.IngestedEmail)
		m.emails[e.UserId] = byId
	}
	if _, exists := byId[e.ProviderMessageId]; exists {
		return false, nil
	}

	e.Id = uuid.NewString()
	e.CreatedAt = m.nowFn()
	copied := *e
	byId[e.ProviderMessageId] = &copied
	return true, nil
}

func (m *MemoryBackend) GetEmail(ctx context.Context, userId, providerMessageId string) (*types.IngestedEmail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.emails[userId][providerMessageId]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (m *MemoryBackend) ListEmails(ctx context.Context, userId string, filter types.EmailFilter) ([]types.IngestedEmail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.IngestedEmail
	for _, e := range m.emails[userId] {
		if filter.ContactId != "" && (e.ContactId == nil || *e.ContactId != filter.ContactId) {
			continue
		}
		if filter.AccountId != "" && (e.AccountId == nil || *e.AccountId != filter.AccountId) {
			continue
		}
		if filter.LabelId != "" && e.LabelId != filter.LabelId {
			continue
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryBackend) SetManualLink(ctx context.Context, userId, providerMessageId string, contactId, accountId *string) (*types.IngestedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.emails[userId][providerMessageId]
	if !ok {
		return nil, nil
	}
	e.ContactId = contactId
	e.AccountId = accountId
	e.LinkSource = types.LinkSourceManual
	e.LinkConfidence = 1
	copied := *e
	return &copied, nil
}

// ----------------------------------------------------------------------------
// Sync runs
// ----------------------------------------------------------------------------

func (m *MemoryBackend) CreateSyncRun(ctx context.Context, run *types.SyncRun) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *run
	copied.Id = uuid.NewString()
	m.runs[copied.Id] = &copied
	return copied.Id, nil
}

func (m *MemoryBackend) CompleteSyncRun(ctx context.Context, id string, outcome types.RunOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok || run.Status != types.SyncStatusPending {
		return ErrSyncRunNotPending
	}
	completedAt := outcome.CompletedAt
	run.Status = outcome.Status
	run.EmailsSynced = outcome.EmailsSynced
	run.EmailsSkipped = outcome.EmailsSkipped
	run.ErrorMessage = outcome.ErrorMessage
	run.CompletedAt = &completedAt
	return nil
}

func (m *MemoryBackend) ListSyncRuns(ctx context.Context, userId string, limit int) ([]types.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.SyncRun
	for _, run := range m.runs {
		if run.UserId == userId {
			out = append(out, *run)
		}
	}
	sortRunsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryBackend) GetLatestSuccessfulRun(ctx context.Context, userId string, labelId *string) (*types.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []types.SyncRun
	for _, run := range m.runs {
		if run.UserId != userId || run.Status != types.SyncStatusSuccess {
			continue
		}
		if labelId != nil && (run.LabelId == nil || *run.LabelId != *labelId) {
			continue
		}
		matches = append(matches, *run)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sortRunsNewestFirst(matches)
	return &matches[0], nil
}

func sortRunsNewestFirst(runs []types.SyncRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].Id > runs[j].Id
	})
}

// ----------------------------------------------------------------------------
// CRM directory
// ----------------------------------------------------------------------------

// PutAccount seeds an account. The CRM owns these rows in production.
func (m *MemoryBackend) PutAccount(a types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Id] = &a
}

// PutContact seeds a contact. The CRM owns these rows in production.
func (m *MemoryBackend) PutContact(c types.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.Id] = &c
}

func (m *MemoryBackend) FindContactByEmail(ctx context.Context, userId, email string) (*types.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var match *types.Contact
	for _, c := range m.contacts {
		if c.UserId == userId && strings.EqualFold(c.Email, email) {
			if match == nil || c.Id < match.Id {
				match = c
			}
		}
	}
	if match == nil {
		return nil, nil
	}
	copied := *match
	return &copied, nil
}

func (m *MemoryBackend) FindAccountByDomain(ctx context.Context, userId, domain string) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	domain = types.NormalizeDomain(domain)
	if domain == "" {
		return nil, nil
	}

	var match *types.Account
	for _, a := range m.accounts {
		if a.UserId != userId {
			continue
		}
		if types.NormalizeDomain(a.Domain) == domain || types.NormalizeDomain(a.Website) == domain {
			if match == nil || a.Id < match.Id {
				match = a
			}
		}
	}
	if match == nil {
		return nil, nil
	}
	copied := *match
	return &copied, nil
}

func (m *MemoryBackend) GetContact(ctx context.Context, userId, contactId string) (*types.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[contactId]
	if !ok || c.UserId != userId {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (m *MemoryBackend) GetAccount(ctx context.Context, userId, accountId string) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountId]
	if !ok || a.UserId != userId {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

var _ BackendRepository = (*MemoryBackend)(nil)
