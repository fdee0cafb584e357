package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/audit"
	"github.com/wahajws/amast-crm-sub000/pkg/common"
	"github.com/wahajws/amast-crm-sub000/pkg/gmail"
	"github.com/wahajws/amast-crm-sub000/pkg/ingest"
	"github.com/wahajws/amast-crm-sub000/pkg/labels"
	"github.com/wahajws/amast-crm-sub000/pkg/oauth"
	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// Engine holds the sync components built from one config. The gateway and
// the CLI share it so both run the same code paths.
type Engine struct {
	Config      types.AppConfig
	RedisClient *common.RedisClient // nil in local mode
	Backend     repository.BackendRepository
	Postgres    *repository.PostgresBackend // nil when running on the memory backend
	Lock        common.KeyedLock

	Limiter    *gmail.RateLimiter
	Tokens     *oauth.TokenManager
	Reconciler *labels.Reconciler
	Audit      *audit.Log
	Linker     *ingest.Linker
	Pipeline   *ingest.Pipeline
}

// NewEngine connects storage and builds the sync components. In local mode
// everything lives in memory and locks are process local.
func NewEngine(ctx context.Context, config types.AppConfig) (*Engine, error) {
	e := &Engine{Config: config}

	if config.IsLocalMode() {
		log.Info().Msg("running in local mode - Redis and Postgres disabled")
		e.Backend = repository.NewMemoryBackend()
		e.Lock = common.NewLocalLock()
	} else {
		if err := e.connect(ctx); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.Limiter = gmail.NewRateLimiter(gmail.RateLimitConfig{
		RequestsPerSecond: config.Gmail.RequestsPerSecond,
		BurstSize:         config.Gmail.BurstSize,
	})
	clients := gmail.NewFactory(config.Gmail, e.Limiter)

	e.Tokens = oauth.NewTokenManager(e.Backend, oauth.NewGoogleClient(config.OAuth.Google), clients, config.OAuth)
	e.Reconciler = labels.NewReconciler(e.Backend, e.Tokens)
	e.Audit = audit.NewLog(e.Backend)
	e.Linker = ingest.NewLinker(e.Backend, config.Ingest)
	e.Pipeline = ingest.NewPipeline(e.Tokens, e.Reconciler, e.Backend, e.Audit, e.Linker, e.Lock, config.Ingest)

	return e, nil
}

func (e *Engine) connect(ctx context.Context) error {
	if !e.Config.Database.Redis.IsConfigured() {
		return errors.New("remote mode requires database.redis.addrs")
	}
	redisClient, err := common.NewRedisClient(e.Config.Database.Redis, common.WithClientName("CrmGmailGateway"))
	if err != nil {
		return err
	}
	e.RedisClient = redisClient
	e.Lock = common.NewRedisLock(redisClient)

	if e.Config.Database.Postgres.Host == "" {
		log.Warn().Msg("postgres not configured, using in-memory backend")
		e.Backend = repository.NewMemoryBackend()
		return nil
	}

	sealer, err := common.NewSealer(e.Config.Credentials.EncryptionKey)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	if !sealer.Enabled() {
		log.Warn().Msg("credentials.encryptionKey not set, oauth tokens are stored unsealed")
	}

	postgres, err := repository.NewPostgresBackend(e.Config.Database.Postgres, sealer)
	if err != nil {
		return err
	}
	e.Postgres = postgres
	e.Backend = postgres

	return e.Migrate(ctx)
}

// Migrate applies pending schema migrations. Replicas serialize on an init
// lock so only one runs goose at a time.
func (e *Engine) Migrate(ctx context.Context) error {
	if e.Postgres == nil {
		return nil
	}

	lockKey := common.Keys.GatewayInitLock("migrations")
	token, err := e.Lock.Acquire(ctx, lockKey, common.RedisLockOptions{TtlS: 60, Retries: 100})
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if err := e.Lock.Release(lockKey, token); err != nil {
			log.Error().Str("lock_key", lockKey).Err(err).Msg("failed to release init lock")
		}
	}()

	return e.Postgres.RunMigrations()
}

// Close releases storage connections
func (e *Engine) Close() error {
	var errs []error
	if e.Limiter != nil {
		e.Limiter.Stop()
	}
	if e.Backend != nil {
		errs = append(errs, e.Backend.Close())
	}
	if e.RedisClient != nil {
		errs = append(errs, e.RedisClient.Close())
	}
	return errors.Join(errs...)
}
