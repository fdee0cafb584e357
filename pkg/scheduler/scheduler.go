package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/wahajws/amast-crm-sub000/pkg/common"
	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	defaultInterval    = 15 * time.Minute
	defaultConcurrency = 4
	userSyncTimeout    = 10 * time.Minute
)

// UserSyncer syncs every selected label of one user
type UserSyncer interface {
	SyncAllSyncingLabels(ctx context.Context, user *types.User, source types.SyncType) ([]*types.SyncResult, error)
}

// TickReport summarizes one scheduled pass
type TickReport struct {
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt time.Time         `json:"completedAt"`
	Users       int               `json:"users"`
	Labels      int               `json:"labels"`
	Statuses    map[string]int    `json:"statuses"`
	UserErrors  map[string]string `json:"userErrors,omitempty"`
}

// Status is the scheduler state reported over HTTP
type Status struct {
	Enabled  bool        `json:"enabled"`
	Running  bool        `json:"running"`
	Interval string      `json:"interval"`
	LastTick *TickReport `json:"lastTick"`
}

// Scheduler runs scheduled syncs for every connected user. Each tick is
// claimed through a keyed lock so only one replica syncs per interval.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    types.SchedulerConfig
	creds  repository.CredentialRepository
	syncer UserSyncer
	lock   common.KeyedLock

	mu       sync.RWMutex
	running  bool
	lastTick *TickReport
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(ctx context.Context, cfg types.SchedulerConfig, creds repository.CredentialRepository, syncer UserSyncer, lock common.KeyedLock) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		creds:  creds,
		syncer: syncer,
		lock:   lock,
	}
}

// Start begins the tick loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	log.Info().Dur("interval", s.cfg.Interval).Int("concurrency", s.cfg.Concurrency).Msg("sync scheduler started")
	go s.loop()
	return nil
}

// Stop ends the tick loop. In-flight syncs see a cancelled context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	log.Info().Msg("sync scheduler stopped")
}

// Status returns the current scheduler state
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Enabled:  s.cfg.Enabled,
		Running:  s.running,
		Interval: s.cfg.Interval.String(),
		LastTick: s.lastTick,
	}
}

func (s *Scheduler) loop() {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			if _, err := s.Tick(s.ctx); err != nil && !errors.Is(err, common.ErrLockNotObtained) {
				log.Warn().Err(err).Msg("scheduled sync tick failed")
			}
		}
	}
}

// Tick claims the current interval and runs one pass. It returns
// common.ErrLockNotObtained when another replica already claimed it.
func (s *Scheduler) Tick(ctx context.Context) (*TickReport, error) {
	// The claim is left to expire so skewed replicas do not tick twice
	ttl := s.cfg.Interval - time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	_, err := s.lock.Acquire(ctx, common.Keys.SchedulerTickLock(), common.RedisLockOptions{TtlS: int(ttl.Seconds())})
	if err != nil {
		if errors.Is(err, common.ErrLockNotObtained) {
			log.Debug().Msg("scheduled sync tick claimed elsewhere")
		}
		return nil, err
	}
	return s.RunOnce(ctx)
}

// RunOnce syncs all connected users with bounded concurrency. Failures
// are reported per user and never stop the pass.
func (s *Scheduler) RunOnce(ctx context.Context) (*TickReport, error) {
	userIds, err := s.creds.ListConnectedUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connected users: %w", err)
	}

	report := &TickReport{
		StartedAt:  time.Now(),
		Users:      len(userIds),
		Statuses:   make(map[string]int),
		UserErrors: make(map[string]string),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, userId := range userIds {
		g.Go(func() error {
			uctx, cancel := context.WithTimeout(ctx, userSyncTimeout)
			defer cancel()

			results, err := s.syncer.SyncAllSyncingLabels(uctx, &types.User{Id: userId}, types.SyncTypeScheduled)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("user_id", userId).Err(err).Msg("scheduled sync failed")
				report.UserErrors[userId] = err.Error()
			}
			for _, r := range results {
				report.Labels++
				report.Statuses[string(r.Status)]++
			}
			return nil
		})
	}
	// Per-user failures land in the report, so the group never errors
	g.Wait()

	report.CompletedAt = time.Now()
	s.mu.Lock()
	s.lastTick = report
	s.mu.Unlock()

	log.Info().
		Int("users", report.Users).
		Int("labels", report.Labels).
		Interface("statuses", report.Statuses).
		Dur("elapsed", report.CompletedAt.Sub(report.StartedAt)).
		Msg("scheduled sync pass finished")
	return report, nil
}
