package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"txcalc/internal/core/numerator"
	"txcalc/internal/core/tx"
	"txcalc/internal/domain"
	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/handlers"
	"txcalc/internal/domain/policy"
	"txcalc/internal/domain/session"
	"txcalc/internal/domain/transaction"
	"txcalc/internal/infrastructure/cache"
	v1 "txcalc/internal/infrastructure/http/v1"
	pgnumerator "txcalc/internal/infrastructure/numerator"
	"txcalc/internal/infrastructure/rpc"
	"txcalc/internal/infrastructure/storage/memory"
	"txcalc/internal/infrastructure/storage/postgres"
	"txcalc/internal/infrastructure/storage/postgres/document_repo"
	"txcalc/internal/metadata"
	"txcalc/pkg/logger"
)

// Version is reported by /health/info.
var Version = "dev"

// EventsChannel is the Redis channel document events are relayed to.
const EventsChannel = "txcalc:events"

// ErrOffline is returned by remote calls when no ERP site is configured.
var ErrOffline = errors.New("no ERP site configured")

// App is the assembled server.
type App struct {
	cfg      *Config
	log      *logger.Logger
	sessions *session.Manager
	router   *gin.Engine

	pool   *postgres.Pool
	txm    *postgres.TxManager
	redis  *redis.Client
	cache  *cache.Invoker
	relay  *postgres.OutboxRelay
	closed bool
}

// New connects the optional backends and wires the session manager and
// router. Without DATABASE_URL documents are kept in memory; without
// REDIS_ADDR remote answers are not cached.
func New(ctx context.Context, cfg *Config, log *logger.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	invoker, err := a.remote(ctx)
	if err != nil {
		return nil, err
	}

	store, gen, txm, err := a.storage(ctx)
	if err != nil {
		return nil, err
	}

	types := doctype.Standard()
	f := fetcher.New(invoker)
	reg := dispatch.NewRegistry()
	if err := handlers.Register(reg, types, f); err != nil {
		return nil, fmt.Errorf("register handlers: %w", err)
	}
	calc := transaction.NewCalculator(cfg.Precision())

	hooks := domain.NewDocumentHooks()
	policy.RegisterPeriod(hooks, cfg.PeriodPolicy())
	if cfg.RulesFile != "" {
		rules, err := policy.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		rules.Register(hooks)
		log.Infow("document rules loaded", "file", cfg.RulesFile, "rules", rules.Len())
	}
	if a.txm != nil {
		postgres.NewOutboxPublisher(a.txm).Register(hooks)
	}

	a.sessions = session.NewManager(session.Deps{
		Types:     types,
		Registry:  reg,
		Calc:      calc,
		Fetcher:   f,
		Store:     store,
		Numerator: gen,
		Tx:        txm,
		Hooks:     hooks,
	}, session.Config{
		FetchTimeout: cfg.FetchTimeout,
		MaxSessions:  cfg.MaxSessions,
	})

	a.router = v1.NewRouter(v1.RouterConfig{
		Sessions:         a.sessions,
		Calc:             calc,
		Store:            store,
		MetadataRegistry: metadata.NewRegistry(types),
		Cache:            a.cache,
		Pool:             a.pool,
		Logger:           log,
		Version:          Version,
		Debug:            cfg.IsDevelopment(),
	})
	return a, nil
}

// remote builds the invoker chain: RPC client, optionally behind the cache.
func (a *App) remote(ctx context.Context) (fetcher.Invoker, error) {
	var invoker fetcher.Invoker
	client, err := rpc.NewClient(rpc.Config{
		BaseURL:   a.cfg.FrappeURL,
		APIKey:    a.cfg.FrappeAPIKey,
		APISecret: a.cfg.FrappeAPISecret,
		Timeout:   a.cfg.FrappeTimeout,
	})
	switch {
	case errors.Is(err, rpc.ErrNotConfigured):
		a.log.Warn("FRAPPE_URL is not set, remote lookups will fail")
		invoker = fetcher.InvokerFunc(func(context.Context, string, map[string]any) (fetcher.Response, error) {
			return fetcher.Response{}, ErrOffline
		})
	case err != nil:
		return nil, err
	default:
		invoker = client
	}

	if a.cfg.RedisAddr == "" {
		return invoker, nil
	}
	rdb, err := cache.NewClient(ctx, a.cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	a.redis = rdb
	a.cache = cache.NewInvoker(invoker, rdb, a.cfg.CacheTTL)
	a.log.Infow("remote call cache enabled", "addr", a.cfg.RedisAddr, "ttl", a.cfg.CacheTTL)
	return a.cache, nil
}

// storage picks PostgreSQL when configured, memory otherwise.
func (a *App) storage(ctx context.Context) (domain.DocumentRepository, numerator.Generator, tx.Manager, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Warn("DATABASE_URL is not set, documents are kept in memory")
		return memory.New(), numerator.NewMemory(), tx.Direct{}, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(a.cfg.DatabaseURL))
	if err != nil {
		return nil, nil, nil, err
	}
	a.pool = pool
	if err := postgres.Migrate(ctx, pool); err != nil {
		return nil, nil, nil, err
	}

	txm := postgres.NewTxManager(pool)
	a.txm = txm
	a.relay = postgres.NewOutboxRelay(pool, 100, postgres.OutboxHandlerFunc(a.deliverEvent))
	return document_repo.New(txm), pgnumerator.New(pool), txm, nil
}

// deliverEvent publishes an outbox message on Redis, or logs it when no
// Redis is configured.
func (a *App) deliverEvent(ctx context.Context, msg *postgres.OutboxMessage) error {
	if a.redis == nil {
		logger.Info(ctx, "document event", "event", msg.EventType, "doctype", msg.DocType, "name", msg.DocName)
		return nil
	}
	return a.redis.Publish(ctx, EventsChannel, msg.Payload).Err()
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Run serves HTTP and relays outbox events until ctx is done, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      a.router,
		ReadTimeout:  a.cfg.AppReadTimeout,
		WriteTimeout: a.cfg.AppWriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Infow("server starting", "addr", server.Addr, "env", a.cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if a.relay != nil {
		g.Go(func() error {
			a.relay.Run(ctx, a.cfg.OutboxInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if a.pool != nil {
			a.pool.LogStats(shutdownCtx)
		}
		return a.sessions.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the backends.
func (a *App) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
