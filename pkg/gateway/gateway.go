package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apiv1 "github.com/wahajws/amast-crm-sub000/pkg/api/v1"
	"github.com/wahajws/amast-crm-sub000/pkg/auth"
	"github.com/wahajws/amast-crm-sub000/pkg/common"
	"github.com/wahajws/amast-crm-sub000/pkg/oauth"
	"github.com/wahajws/amast-crm-sub000/pkg/scheduler"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

type Gateway struct {
	Config     types.AppConfig
	engine     *Engine
	httpServer *http.Server
	echo       *echo.Echo
	ctx        context.Context
	cancelFunc context.CancelFunc

	baseRouteGroup *echo.Group

	validator  *auth.JWTValidator
	scheduler  *scheduler.Scheduler
	oauthStore *oauth.Store
	syncGroup  *apiv1.SyncGroup
}

func NewGateway() (*Gateway, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return nil, err
	}
	config := configManager.GetConfig()

	// Setup logging
	if config.PrettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if config.DebugMode {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	return NewGatewayWithConfig(config)
}

// NewGatewayWithConfig builds a gateway from an already loaded config
func NewGatewayWithConfig(config types.AppConfig) (*Gateway, error) {
	validator, err := auth.NewJWTValidator(config.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine, err := NewEngine(ctx, config)
	if err != nil {
		cancel()
		return nil, err
	}

	gateway := &Gateway{
		Config:     config,
		engine:     engine,
		ctx:        ctx,
		cancelFunc: cancel,
		validator:  validator,
		oauthStore: oauth.NewStore(config.OAuth.SessionTTL),
	}
	gateway.scheduler = scheduler.NewScheduler(ctx, config.Scheduler, engine.Backend, engine.Pipeline, engine.Lock)

	if err := gateway.initHTTP(); err != nil {
		gateway.cancelFunc()
		engine.Close()
		return nil, fmt.Errorf("failed to initialize http server: %w", err)
	}

	return gateway, nil
}

func (g *Gateway) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())

	// Configure logging middleware
	if g.Config.Gateway.HTTP.EnablePrettyLogs {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: "${time_rfc3339} ${method} ${uri} ${status} ${latency_human}\n",
		}))
	}

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: g.Config.Gateway.HTTP.CORS.AllowedOrigins,
		AllowHeaders: g.Config.Gateway.HTTP.CORS.AllowedHeaders,
		AllowMethods: g.Config.Gateway.HTTP.CORS.AllowedMethods,
	}))

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(auth.HTTPMiddleware(g.validator))

	g.echo = e
	g.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", g.Config.Gateway.HTTP.Host, g.Config.Gateway.HTTP.Port),
		Handler: e,
	}

	g.baseRouteGroup = e.Group(apiv1.HttpServerBaseRoute)
	g.registerRoutes()

	return nil
}

func (g *Gateway) registerRoutes() {
	engine := g.engine
	requireUser := auth.RequireAuthMiddleware()

	apiv1.NewHealthGroup(g.baseRouteGroup.Group("/health"), engine.Backend, engine.RedisClient)

	gmailGroup := g.baseRouteGroup.Group("/gmail")
	apiv1.NewOAuthGroup(gmailGroup.Group("/oauth"), g.oauthStore, engine.Tokens)
	apiv1.NewLabelsGroup(gmailGroup.Group("/labels", requireUser), engine.Reconciler)
	g.syncGroup = apiv1.NewSyncGroup(gmailGroup.Group("/sync", requireUser), engine.Pipeline, engine.Audit)
	apiv1.NewEmailsGroup(gmailGroup.Group("/emails", requireUser), engine.Backend, engine.Backend)

	schedulerService := scheduler.NewSchedulerService(g.scheduler)
	schedulerService.RegisterRoutes(gmailGroup, requireUser)

	log.Info().Msg("gmail, oauth and scheduler APIs registered at " + apiv1.HttpServerBaseRoute)
}

func (g *Gateway) StartAsync() error {
	if g.Config.Scheduler.Enabled {
		if err := g.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	addr := g.httpServer.Addr
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http: %w", err)
	}

	go func() {
		if err := g.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	log.Info().
		Str("host", g.Config.Gateway.HTTP.Host).
		Int("port", g.Config.Gateway.HTTP.Port).
		Str("mode", g.Config.Mode).
		Bool("scheduler", g.Config.Scheduler.Enabled).
		Msg("gateway http server running")

	return nil
}

func (g *Gateway) Shutdown() {
	g.shutdown()
}

func (g *Gateway) Start() error {
	if err := g.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)
	<-terminationSignal

	log.Info().Msg("termination signal received. shutting down...")
	g.shutdown()

	return nil
}

func (g *Gateway) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), g.Config.Gateway.ShutdownTimeout)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return g.httpServer.Shutdown(ctx)
	})

	eg.Go(func() error {
		g.scheduler.Stop()
		return nil
	})

	eg.Go(func() error {
		done := make(chan struct{})
		go func() {
			g.syncGroup.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return errors.New("background syncs still running")
		}
	})

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to shutdown gateway gracefully")
	}

	g.cancelFunc()
	g.oauthStore.Stop()
	if err := g.engine.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close storage")
	}

	log.Info().Msg("gateway stopped")
}

// Handler returns the HTTP handler, for tests and embedding
func (g *Gateway) Handler() http.Handler {
	return g.echo
}

func (g *Gateway) Engine() *Engine {
	return g.engine
}

func (g *Gateway) Scheduler() *scheduler.Scheduler {
	return g.scheduler
}
