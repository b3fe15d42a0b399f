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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pos-agent/api"
	"github.com/angelmondragon/pos-agent/api/controllers"
	"github.com/angelmondragon/pos-agent/api/routes"
	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/internal/catalog"
	"github.com/angelmondragon/pos-agent/internal/checkout"
	"github.com/angelmondragon/pos-agent/internal/held"
	"github.com/angelmondragon/pos-agent/internal/messaging"
	"github.com/angelmondragon/pos-agent/internal/offlinequeue"
	"github.com/angelmondragon/pos-agent/internal/payment"
	"github.com/angelmondragon/pos-agent/internal/receipt"
	"github.com/angelmondragon/pos-agent/internal/session"
	"github.com/angelmondragon/pos-agent/internal/syncagent"
	"github.com/angelmondragon/pos-agent/pkg/config"
	"github.com/angelmondragon/pos-agent/pkg/db"
	"github.com/angelmondragon/pos-agent/pkg/instance"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/metrics"
	"github.com/angelmondragon/pos-agent/pkg/migrate"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
	"github.com/angelmondragon/pos-agent/pkg/pubsub"
	"github.com/angelmondragon/pos-agent/pkg/redis"
	"github.com/angelmondragon/pos-agent/pkg/square"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "pos-agent"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	if cfg.Terminal.ID == "" {
		cfg.Terminal.ID = instance.GetID()
	}

	logg = logger.New(logger.Options{
		ServiceName: "pos-agent",
		Terminal:    cfg.Terminal.ID,
		Branch:      cfg.Terminal.BranchID,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "pos agent stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readiness := map[string]controllers.Pinger{}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()
	readiness["db"] = dbClient

	if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var (
		idempotency redis.IdempotencyStore = redis.NewMemoryStore()
		lock        syncagent.Lock         = syncagent.NewLocalLock()
	)
	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		readiness["redis"] = redisClient
		idempotency = redisClient

		if cfg.Sync.UsesRedisLock() {
			redisLock, lockErr := syncagent.NewRedisLock(redisClient, redisClient.LockKey("sync", cfg.Terminal.BranchID), cfg.Sync.LockTTL)
			if lockErr != nil {
				return lockErr
			}
			lock = redisLock
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(registry)

	opts := []orderapi.Option{orderapi.WithTimeout(cfg.Remote.RequestTimeout)}
	if token := cfg.Remote.ServiceToken; token != "" {
		opts = append(opts, orderapi.WithTokenSource(func(context.Context) string { return token }))
	}
	orders, err := orderapi.NewClient(cfg.Remote.BaseURL, opts...)
	if err != nil {
		return err
	}

	var card payment.CardProvider
	if cfg.Square.Enabled() {
		squareClient, squareErr := square.NewClient(ctx, cfg.Square, logg)
		if squareErr != nil {
			return squareErr
		}
		card = squareClient
	}

	sessions, err := session.NewManager(session.ManagerParams{JWT: cfg.JWT, Logger: logg, TerminalID: cfg.Terminal.ID})
	if err != nil {
		return err
	}

	activeCart := cart.New(cart.TaxConfig{})
	catalogCache, err := catalog.New(catalog.Params{Source: orders, Logger: logg, TaxTarget: activeCart})
	if err != nil {
		return err
	}
	if err := catalogCache.Refresh(ctx); err != nil {
		logg.Warn(ctx, "catalog unavailable at boot, selling from an empty catalog until refreshed")
	}

	heldSales, err := held.NewRegistry(held.RegistryParams{
		Repository: held.NewRepository(dbClient.DB()),
		Cart:       activeCart,
		Logger:     logg,
		TerminalID: cfg.Terminal.ID,
	})
	if err != nil {
		return err
	}

	queue, err := offlinequeue.New(offlinequeue.Params{
		Repository: offlinequeue.NewRepository(dbClient.DB()),
		Logger:     logg,
		Depth:      syncMetrics,
		TerminalID: cfg.Terminal.ID,
	})
	if err != nil {
		return err
	}

	flow, err := payment.NewFlow(payment.FlowParams{
		Logger:      logg,
		Pusher:      orders,
		Card:        card,
		CountryCode: cfg.MobileMoney.CountryCode,
		Currency:    cfg.Checkout.Currency,
	})
	if err != nil {
		return err
	}

	orchestrator, err := checkout.New(checkout.Params{
		Cart:       activeCart,
		Flow:       flow,
		Submitter:  orders,
		Queue:      queue,
		Cashiers:   sessions,
		Printer:    receipt.LogPrinter{Logger: logg},
		Metrics:    syncMetrics,
		Logger:     logg,
		TerminalID: cfg.Terminal.ID,
		Currency:   cfg.Checkout.Currency,
		AckDelay:   cfg.Checkout.AckDelay,
	})
	if err != nil {
		return err
	}

	bus := messaging.NewBus(0)
	defer bus.Close()
	events := []messaging.EventPublisher{bus}

	var bridge *messaging.Bridge
	if cfg.PubSub.Enabled() {
		pubsubClient, pubsubErr := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if pubsubErr != nil {
			return pubsubErr
		}
		defer func() { err = multierr.Append(err, pubsubClient.Close()) }()
		readiness["pubsub"] = pubsubClient

		dedupe, dedupeErr := messaging.NewDeduper(idempotency, cfg.Redis.IdempotencyTTL)
		if dedupeErr != nil {
			return dedupeErr
		}
		bridge, err = messaging.NewBridge(messaging.BridgeParams{
			Subscription: pubsubClient.SyncTriggerSubscription(),
			Publisher:    pubsubClient.SyncEventsPublisher(),
			Commands:     bus,
			Logger:       logg,
			TerminalID:   cfg.Terminal.ID,
			Dedupe:       dedupe,
		})
		if err != nil {
			return err
		}
		events = append(events, bridge)
	}

	agent, err := syncagent.New(syncagent.Params{
		Queue:          queue,
		Submitter:      orders,
		Lock:           lock,
		Metrics:        syncMetrics,
		Logger:         logg,
		Commands:       bus,
		Triggers:       bus,
		Events:         events,
		SubmitRate:     cfg.Sync.SubmitRate,
		SubmitBurst:    cfg.Sync.SubmitBurst,
		RequestTimeout: cfg.Remote.RequestTimeout,
		StaleAfter:     cfg.Sync.StaleAfter,
		AutoInterval:   cfg.Sync.AutoInterval,
		MaxBackoff:     cfg.Sync.MaxBackoff,
	})
	if err != nil {
		return err
	}

	queue.Subscribe(sessions.OnPendingCount)
	queue.Subscribe(orchestrator.OnPendingCount)
	queue.Subscribe(agent.OnPendingCount)
	if err := queue.Init(ctx); err != nil {
		return err
	}

	server := api.NewServer(cfg, routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		Metrics:     registry,
		Readiness:   readiness,
		Idempotency: idempotency,
		Sessions:    sessions,
		Cart:        activeCart,
		Catalog:     catalogCache,
		Held:        heldSales,
		Checkout:    orchestrator,
		Queue:       queue,
		Sync:        agent,
		StaleAfter:  cfg.Sync.StaleAfter,
	}))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sessions.Watch(gctx, bus.Events())
		return nil
	})
	group.Go(func() error {
		return agent.Run(gctx)
	})
	if bridge != nil {
		group.Go(func() error {
			return bridge.Run(gctx)
		})
	}
	group.Go(func() error {
		logg.Info(logg.WithFields(gctx, map[string]any{"env": cfg.App.Env, "addr": server.Addr}), "starting pos agent")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "pos agent shutting down gracefully")
	return nil
}
