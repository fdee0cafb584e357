package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/audit"
	"github.com/wahajws/amast-crm-sub000/pkg/common"
	"github.com/wahajws/amast-crm-sub000/pkg/gmail"
	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 10
	defaultLockTTL  = 10 * time.Minute
)

// ClientSource hands out authenticated Gmail clients
type ClientSource interface {
	GetAuthenticatedClient(ctx context.Context, user *types.User) (*gmail.Client, error)
}

// LabelSource exposes the label preferences the pipeline reads, and the
// one label field it reports back
type LabelSource interface {
	SyncingLabels(ctx context.Context, user *types.User) ([]types.LabelSyncState, error)
	MarkSynced(ctx context.Context, user *types.User, labelId string, at time.Time) error
}

// Pipeline ingests messages from syncing labels into the email store.
// Runs for one (user, label) are serialized through a keyed lock.
type Pipeline struct {
	clients ClientSource
	labels  LabelSource
	emails  repository.EmailRepository
	audit   *audit.Log
	linker  *Linker
	lock    common.KeyedLock
	cfg     types.IngestConfig
	nowFn   func() time.Time
}

func NewPipeline(clients ClientSource, labels LabelSource, emails repository.EmailRepository, auditLog *audit.Log, linker *Linker, lock common.KeyedLock, cfg types.IngestConfig) *Pipeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Pipeline{
		clients: clients,
		labels:  labels,
		emails:  emails,
		audit:   auditLog,
		linker:  linker,
		lock:    lock,
		cfg:     cfg,
		nowFn:   time.Now,
	}
}

// SyncLabel runs one ingestion pass over labelId. The run is always
// recorded. A non-nil error alongside a failed result is the cause, so
// callers can tell "reconnect" apart from "retry". Failed runs report zero
// counts; messages stored before an abort stay stored and are skipped by
// the next run.
func (p *Pipeline) SyncLabel(ctx context.Context, user *types.User, labelId string, source types.SyncType) (*types.SyncResult, error) {
	if labelId == "" {
		return nil, &types.ValidationError{Field: "labelId", Message: "required"}
	}
	if source == "" {
		source = types.SyncTypeManual
	}

	lockKey := common.Keys.GmailSyncLock(user.Id, labelId)
	lockOpts := common.RedisLockOptions{TtlS: int(p.cfg.LockTTL.Seconds())}
	token, err := p.lock.Acquire(ctx, lockKey, lockOpts)
	if err != nil {
		if errors.Is(err, common.ErrLockNotObtained) {
			return nil, &types.SyncInProgressError{UserId: user.Id, LabelId: labelId}
		}
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	stopLease := p.keepLease(runCtx, cancelRun, user, labelId, lockKey, token, lockOpts)
	defer func() {
		stopLease()
		cancelRun()
		if err := p.lock.Release(lockKey, token); err != nil {
			log.Warn().Str("user_id", user.Id).Str("label_id", labelId).Err(err).Msg("failed to release sync lock")
		}
	}()

	runId, err := p.audit.Open(ctx, &types.SyncRun{
		UserId:    user.Id,
		LabelId:   &labelId,
		SyncType:  source,
		StartedAt: p.nowFn(),
	})
	if err != nil {
		return nil, err
	}

	result := &types.SyncResult{
		LabelId: labelId,
		RunId:   runId,
		Status:  types.SyncStatusSuccess,
		Errors:  []string{},
	}
	runErr := p.run(runCtx, user, labelId, result)
	if result.Status == types.SyncStatusFailed {
		result.EmailsSynced = 0
		result.EmailsSkipped = 0
	}

	// The run row must be closed even when the caller has gone away
	closeCtx := context.WithoutCancel(ctx)
	if err := p.audit.Complete(closeCtx, runId, result); err != nil {
		log.Error().Str("user_id", user.Id).Str("label_id", labelId).Str("run_id", runId).Err(err).Msg("failed to complete sync run")
	}
	if result.Status != types.SyncStatusFailed {
		if err := p.labels.MarkSynced(closeCtx, user, labelId, p.nowFn()); err != nil {
			log.Warn().Str("user_id", user.Id).Str("label_id", labelId).Err(err).Msg("failed to mark label synced")
		}
	}

	event := log.Info()
	if result.Status != types.SyncStatusSuccess {
		event = log.Warn().Strs("errors", result.Errors)
	}
	event.
		Str("user_id", user.Id).
		Str("label_id", labelId).
		Str("run_id", runId).
		Str("sync_type", string(source)).
		Str("status", string(result.Status)).
		Int("synced", result.EmailsSynced).
		Int("skipped", result.EmailsSkipped).
		Msg("label sync finished")

	return result, runErr
}

// SyncAllSyncingLabels syncs every label selected for sync, one after the
// other. A failing label does not stop the rest.
func (p *Pipeline) SyncAllSyncingLabels(ctx context.Context, user *types.User, source types.SyncType) ([]*types.SyncResult, error) {
	states, err := p.labels.SyncingLabels(ctx, user)
	if err != nil {
		return nil, err
	}

	results := make([]*types.SyncResult, 0, len(states))
	for _, state := range states {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := p.SyncLabel(ctx, user, state.LabelId, source)
		if result == nil {
			// Nothing was recorded, e.g. another run holds the label
			result = &types.SyncResult{
				LabelId: state.LabelId,
				Status:  types.SyncStatusFailed,
				Errors:  []string{err.Error()},
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// keepLease refreshes the sync lock until the returned stop func is called.
// A lost lease cancels the run so it cannot overlap the next holder.
func (p *Pipeline) keepLease(ctx context.Context, cancel context.CancelFunc, user *types.User, labelId, key, token string, opts common.RedisLockOptions) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		t := time.NewTicker(p.cfg.LockTTL / 3)
		defer t.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				err := p.lock.Refresh(ctx, key, token, opts)
				if err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				log.Warn().Str("user_id", user.Id).Str("label_id", labelId).Err(err).Msg("lost sync lock, stopping run")
				cancel()
				return
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// run fills result and returns the error that made the run fail, if any
func (p *Pipeline) run(ctx context.Context, user *types.User, labelId string, result *types.SyncResult) error {
	client, err := p.clients.GetAuthenticatedClient(ctx, user)
	if err != nil {
		fail(result, err)
		return err
	}

	pageToken := ""
	for page := 0; page < p.cfg.MaxPages; page++ {
		listed, err := client.ListMessages(ctx, labelId, pageToken, p.cfg.PageSize)
		if err != nil {
			if page == 0 || types.IsAuthError(err) {
				fail(result, err)
				return err
			}
			degrade(result, fmt.Sprintf("list page %d: %v", page+1, err))
			return nil
		}

		for _, id := range listed.Ids {
			err := p.ingestMessage(ctx, user, labelId, client, id, result)
			if err == nil {
				continue
			}

			msg := fmt.Sprintf("message %s: %v", id, err)
			switch {
			case types.IsAuthError(err):
				result.Status = types.SyncStatusFailed
				result.Errors = append(result.Errors, msg)
				return err
			case (&types.ProviderRateLimitError{}).From(err):
				// Keep what we have and let the next trigger resume
				degrade(result, msg)
				return nil
			case ctx.Err() != nil:
				degrade(result, msg)
				return nil
			default:
				log.Warn().Str("user_id", user.Id).Str("label_id", labelId).Str("message_id", id).Err(err).Msg("failed to ingest message")
				degrade(result, msg)
			}
		}

		if listed.NextPageToken == "" {
			return nil
		}
		pageToken = listed.NextPageToken
	}

	log.Debug().Str("user_id", user.Id).Str("label_id", labelId).Int("max_pages", p.cfg.MaxPages).Msg("page limit reached, remaining messages wait for the next run")
	return nil
}

func (p *Pipeline) ingestMessage(ctx context.Context, user *types.User, labelId string, client *gmail.Client, id string, result *types.SyncResult) error {
	exists, err := p.emails.EmailExists(ctx, user.Id, id)
	if err != nil {
		return fmt.Errorf("check existing: %w", err)
	}
	if exists {
		result.EmailsSkipped++
		return nil
	}

	msg, err := client.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	link, err := p.linker.Link(ctx, user.Id, msg.FromEmail)
	if err != nil {
		log.Warn().Str("user_id", user.Id).Str("message_id", id).Err(err).Msg("entity linking failed, storing unlinked")
	}

	inserted, err := p.emails.InsertEmail(ctx, types.NewIngestedEmail(user.Id, labelId, msg, link))
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if inserted {
		result.EmailsSynced++
	} else {
		result.EmailsSkipped++
	}
	return nil
}

func fail(result *types.SyncResult, err error) {
	result.Status = types.SyncStatusFailed
	result.Errors = append(result.Errors, err.Error())
}

func degrade(result *types.SyncResult, msg string) {
	if result.Status == types.SyncStatusSuccess {
		result.Status = types.SyncStatusPartial
	}
	result.Errors = append(result.Errors, msg)
}
