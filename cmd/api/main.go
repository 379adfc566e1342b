package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/events-aggregator/api/controllers"
	"github.com/angelmondragon/events-aggregator/api/routes"
	"github.com/angelmondragon/events-aggregator/internal/cron"
	"github.com/angelmondragon/events-aggregator/internal/dispatcher"
	"github.com/angelmondragon/events-aggregator/internal/events"
	"github.com/angelmondragon/events-aggregator/internal/eventsync"
	"github.com/angelmondragon/events-aggregator/internal/idempotency"
	"github.com/angelmondragon/events-aggregator/internal/seats"
	"github.com/angelmondragon/events-aggregator/internal/tickets"
	"github.com/angelmondragon/events-aggregator/pkg/config"
	"github.com/angelmondragon/events-aggregator/pkg/db"
	"github.com/angelmondragon/events-aggregator/pkg/instance"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
	"github.com/angelmondragon/events-aggregator/pkg/metrics"
	"github.com/angelmondragon/events-aggregator/pkg/migrate"
	"github.com/angelmondragon/events-aggregator/pkg/notifier"
	"github.com/angelmondragon/events-aggregator/pkg/outbox"
	"github.com/angelmondragon/events-aggregator/pkg/redis"
	"github.com/angelmondragon/events-aggregator/pkg/upstream"
)

const (
	shutdownTimeout = 20 * time.Second
	syncLockName    = "event-sync"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "api shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	var redisPinger controllers.Pinger
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		redisPinger = redisClient
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	reg := prometheus.DefaultRegisterer
	syncMetrics := metrics.NewSyncMetrics(reg)
	outboxMetrics := metrics.NewOutboxMetrics(reg)
	cronMetrics := metrics.NewCronJobMetrics(reg)

	breaker := upstream.NewBreaker("events-provider", cfg.Upstream, func(name string, from, to gobreaker.State) {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		}), "provider circuit breaker changed state")
	})
	provider, err := upstream.NewClient(cfg.Upstream, upstream.WithBreaker(breaker))
	if err != nil {
		return err
	}
	notifierClient, err := notifier.NewClient(cfg.Notifier)
	if err != nil {
		return err
	}

	seatCache := seats.NewCache(provider, redisClient, cfg.Seats.CacheTTL, logg)

	eventService, err := events.NewService(events.NewRepository(dbClient.DB()), seatCache)
	if err != nil {
		return err
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	ticketService, err := tickets.NewService(tickets.ServiceParams{
		Tx:       dbClient,
		Repo:     tickets.NewRepository(dbClient.DB()),
		Events:   eventService,
		Guard:    idempotency.NewGuard(idempotency.NewRepository(dbClient.DB())),
		Provider: provider,
		Outbox:   outbox.NewService(outboxRepo, logg),
		Seats:    seatCache,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	instanceID := instance.GetID()
	engine, err := eventsync.NewEngine(eventsync.EngineParams{
		Repo:       eventsync.NewRepository(dbClient.DB()),
		Feed:       provider,
		Logger:     logg,
		Metrics:    syncMetrics,
		BatchSize:  cfg.Sync.BatchSize,
		InstanceID: instanceID,
	})
	if err != nil {
		return err
	}
	if err := engine.Recover(ctx); err != nil {
		return err
	}

	// Triggered runs stop with the server group, not only on a signal.
	triggerCtx, cancelTriggers := context.WithCancel(ctx)
	trigger := eventsync.NewTrigger(triggerCtx, engine, logg)
	defer trigger.Wait()
	defer cancelTriggers()

	lock, err := syncLock(cfg, redisClient)
	if err != nil {
		return err
	}
	syncJob, err := cron.NewSyncJob(engine, logg)
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(syncJob)
	if err != nil {
		return err
	}
	cronService, err := cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     registry,
		Lock:         lock,
		Metrics:      cronMetrics,
		Interval:     cfg.Sync.Interval,
		InitialDelay: cfg.Sync.InitialDelay,
	})
	if err != nil {
		return err
	}

	dispatch, err := dispatcher.NewService(dispatcher.ServiceParams{
		Config:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Notifier:   notifierClient,
		Metrics:    outboxMetrics,
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisPinger,
			Events:      eventService,
			Tickets:     ticketService,
			SyncStatus:  engine,
			SyncTrigger: trigger,
			OutboxStats: dispatch,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instanceID,
	})
	logg.Info(logCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cronService.Run(gctx) })
	g.Go(func() error { return dispatch.Run(gctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		cancelTriggers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func syncLock(cfg *config.Config, client *redis.Client) (cron.Lock, error) {
	if !cfg.Sync.UsesRedisLock() {
		return cron.NewLocalLock(), nil
	}
	if client == nil {
		return nil, errors.New("EVENTS_SYNC_LOCK=redis requires EVENTS_REDIS_URL or EVENTS_REDIS_ADDR")
	}
	return cron.NewRedisLock(client, client.LockKey(syncLockName), cfg.Sync.LockTTL)
}
