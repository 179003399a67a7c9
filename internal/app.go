// internal/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	router "credit-ledger/internal/api"
	"credit-ledger/internal/api/handler"
	ledgermw "credit-ledger/internal/api/middleware"
	"credit-ledger/internal/cache"
	"credit-ledger/internal/config"
	"credit-ledger/internal/events"
	"credit-ledger/internal/metrics"
	"credit-ledger/internal/repository/postgres"
	"credit-ledger/internal/service"
	"credit-ledger/internal/store"
	"credit-ledger/internal/store/memory"
	"credit-ledger/internal/util"
	"credit-ledger/pkg/db"
)

// localCacheEntries bounds the in-process cache backend.
const localCacheEntries = 100_000

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB

	// Stores
	LedgerStore  store.LedgerStore
	MessageStore store.MessageStore

	Cache     *cache.Balances
	Publisher events.Publisher
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics

	// Services
	Coordinator    service.BalanceCoordinator
	MessageService service.MessageService

	// HTTP API
	SendLimiter *ledgermw.RateLimiter
	HTTPHandler http.Handler

	tracerProvider *sdktrace.TracerProvider
	stopSweeper    context.CancelFunc
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration from the environment and initializes all
// application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		// Logger is not configured yet; fall back to the default one so
		// callers can still report the failure.
		app.Logger = util.GetLogger()
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.InitializeWithConfig(ctx, cfg)
}

// InitializeWithConfig initializes all application components from cfg.
func (app *Application) InitializeWithConfig(ctx context.Context, cfg *config.AppConfig) error {
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger(cfg.LogLevel)
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.",
		"store_backend", cfg.StoreBackend, "cache_backend", cfg.Cache.Backend)

	// 3. Tracing and metrics
	if err := app.initTracing(); err != nil {
		return err
	}
	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(app.Registry)

	// 4. Ledger store
	if err := app.initStore(ctx); err != nil {
		return err
	}

	// 5. Balance cache
	if err := app.initCache(ctx); err != nil {
		return err
	}

	// 6. Event publisher
	if len(cfg.Kafka.Brokers) > 0 {
		app.Publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, app.Logger)
		app.Logger.Info("Ledger events published to Kafka.", "topic", cfg.Kafka.Topic)
	} else {
		app.Publisher = events.Noop{}
	}

	// 7. Initialize Services
	app.Coordinator = service.NewBalanceCoordinator(
		app.LedgerStore,
		app.Cache,
		app.Publisher,
		app.Metrics,
		app.Logger,
		service.CoordinatorConfig{
			CacheTTL:        cfg.Cache.TTL,
			StoreTimeout:    cfg.StoreTimeout,
			StartingBalance: cfg.StartingBalance,
		},
	)
	app.MessageService = service.NewMessageService(app.Coordinator, app.LedgerStore, app.MessageStore, cfg.StoreTimeout, app.Logger)
	app.Logger.Info("Services initialized.")

	// 8. Initialize HTTP Handlers and Router
	app.SendLimiter = ledgermw.NewRateLimiter(cfg.SendRatePerSec, cfg.SendBurst)
	sweepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	app.stopSweeper = stop
	go app.sweepLimiter(sweepCtx)

	app.HTTPHandler = router.NewRouter(router.Handlers{
		Accounts:    handler.NewAccountHandler(app.Coordinator, app.Logger),
		Messages:    handler.NewMessageHandler(app.MessageService, app.Logger),
		SendLimiter: app.SendLimiter,
		Gatherer:    app.Registry,
	}, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

func (app *Application) initTracing() error {
	opts := []sdktrace.TracerProviderOption{}
	if app.Config.TraceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	app.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(app.tracerProvider)
	return nil
}

func (app *Application) initStore(ctx context.Context) error {
	switch app.Config.StoreBackend {
	case config.StoreBackendMemory:
		mem := memory.New()
		app.LedgerStore = mem
		app.MessageStore = mem
		app.Logger.Warn("Using in-memory ledger store; balances will not survive a restart.")
		return nil
	}

	database, err := db.NewPostgresDB(ctx, app.Config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	if app.Config.AutoMigrate {
		if err := postgres.Migrate(ctx, app.DB); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		app.Logger.Info("Database schema up to date.")
	}

	// Pass the concrete db.BeginTx, db.CommitTx, db.RollbackTx functions from pkg/db
	sqlStore := store.NewSQLStore(
		app.DB, // This is the DBTxBeginner
		app.DB, // This is the DBExecutor
		postgres.NewAccountRepository(),
		postgres.NewLedgerEventRepository(),
		postgres.NewMessageRepository(),
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
	)
	app.LedgerStore = sqlStore
	app.MessageStore = sqlStore
	return nil
}

func (app *Application) initCache(ctx context.Context) error {
	var sub cache.Substrate
	switch app.Config.Cache.Backend {
	case config.CacheBackendRedis:
		rds := cache.NewRedis(cache.RedisOptions{
			Addr:     app.Config.Cache.RedisAddr,
			Password: app.Config.Cache.RedisPassword,
			DB:       app.Config.Cache.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rds.Ping(pingCtx); err != nil {
			// Not fatal: balances are served from the store until Redis returns.
			app.Logger.Warn("Redis unreachable at startup, cache will bypass until it recovers", "addr", app.Config.Cache.RedisAddr, "error", err)
		}
		sub = rds
	case config.CacheBackendMemory:
		local, err := cache.NewLocal(localCacheEntries)
		if err != nil {
			return fmt.Errorf("failed to create local cache: %w", err)
		}
		sub = local
	}

	app.Cache = cache.NewBalances(sub, cache.Options{
		BreakerThreshold: app.Config.Cache.BreakerThreshold,
		BreakerCooldown:  app.Config.Cache.BreakerCooldown,
		Logger:           app.Logger,
		Observer:         app.Metrics,
	})
	return nil
}

func (app *Application) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.SendLimiter.Sweep(); n > 0 {
				app.Logger.Debug("Dropped idle rate limiters", "count", n)
			}
		}
	}
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	var errs []error

	if app.stopSweeper != nil {
		app.stopSweeper()
	}
	if app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			app.Logger.Error("Failed to close event publisher", "error", err)
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}
	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			app.Logger.Error("Failed to close cache", "error", err)
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			errs = append(errs, fmt.Errorf("failed to close database connection: %w", err))
		} else {
			app.Logger.Info("Database connection closed.")
		}
	}
	if app.tracerProvider != nil {
		if err := app.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracer provider: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
