// internal/service/coordinator.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"credit-ledger/internal/cache"
	"credit-ledger/internal/domain"
	"credit-ledger/internal/events"
	"credit-ledger/internal/metrics"
	"credit-ledger/internal/store"
	"credit-ledger/internal/util"
)

// Defaults applied when CoordinatorConfig leaves a field zero.
const (
	DefaultCacheTTL     = 300 * time.Second
	DefaultStoreTimeout = 5 * time.Second
	DefaultCacheTimeout = time.Second
)

// Mutation is the outcome of a successful spend or recharge.
type Mutation struct {
	// Balance is the authoritative post-mutation balance.
	Balance int64
	// Event is the ledger event recording the change. For a replayed
	// recharge it is the original event.
	Event *domain.LedgerEvent
	// Replayed is true when a recharge reference had already been applied.
	Replayed bool
}

// BalanceCoordinator mediates every balance read and mutation, keeping the
// cache consistent with the durable store.
type BalanceCoordinator interface {
	CreateAccount(ctx context.Context, owner string) (*domain.Account, error)
	ReadBalance(ctx context.Context, accountID int64) (int64, error)
	Spend(ctx context.Context, accountID, cost int64) (*Mutation, error)
	Recharge(ctx context.Context, accountID, amount int64, reference string) (*Mutation, error)
	History(ctx context.Context, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error)
	Invalidate(ctx context.Context, accountID int64)
}

// CoordinatorConfig tunes the coordinator.
type CoordinatorConfig struct {
	CacheTTL     time.Duration
	StoreTimeout time.Duration
	// CacheTimeout bounds cache writes made after the store answered. They
	// run detached from the caller so a cancelled request cannot skip them.
	CacheTimeout    time.Duration
	StartingBalance int64
}

type coordinator struct {
	store     store.LedgerStore
	cache     cache.BalanceCache
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	cfg       CoordinatorConfig

	// loads coalesces concurrent cache misses for one account.
	loads singleflight.Group
}

// NewBalanceCoordinator creates a new BalanceCoordinator. publisher and
// metrics may be nil.
func NewBalanceCoordinator(
	ledger store.LedgerStore,
	balances cache.BalanceCache,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg CoordinatorConfig,
) BalanceCoordinator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = DefaultCacheTimeout
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if balances == nil {
		balances = cache.Disabled()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &coordinator{
		store:     ledger,
		cache:     balances,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("credit-ledger/internal/service"),
		cfg:       cfg,
	}
}

// CreateAccount opens an account with the starting balance and primes the cache.
func (c *coordinator) CreateAccount(ctx context.Context, owner string) (*domain.Account, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.CreateAccount")
	defer span.End()

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	start := time.Now()
	account, err := c.store.CreateAccount(storeCtx, owner, c.cfg.StartingBalance)
	c.metrics.ObserveStore("create_account", start)
	if err != nil {
		return nil, c.fail(span, "create account", err)
	}

	span.SetAttributes(attribute.Int64("account.id", account.ID))
	c.setCached(ctx, account.ID, account.Balance)
	return account, nil
}

// ReadBalance serves from the cache when possible and otherwise loads the
// authoritative balance and repopulates the cache.
func (c *coordinator) ReadBalance(ctx context.Context, accountID int64) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.ReadBalance", trace.WithAttributes(attribute.Int64("account.id", accountID)))
	defer span.End()

	if balance, ok := c.cache.Get(ctx, accountID); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return balance, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The shared load must not die with whichever caller started it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.loads.Do(strconv.FormatInt(accountID, 10), func() (interface{}, error) {
		storeCtx, cancel := c.storeContext(loadCtx)
		defer cancel()

		start := time.Now()
		balance, err := c.store.GetBalance(storeCtx, accountID)
		c.metrics.ObserveStore("get_balance", start)
		if err != nil {
			return int64(0), err
		}
		c.setCached(loadCtx, accountID, balance)
		return balance, nil
	})
	if err != nil {
		return 0, c.fail(span, "read balance", err)
	}
	return v.(int64), nil
}

// Spend debits cost credits. On InsufficientBalance nothing changes, the
// cache included.
func (c *coordinator) Spend(ctx context.Context, accountID, cost int64) (*Mutation, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.Spend", trace.WithAttributes(
		attribute.Int64("account.id", accountID),
		attribute.Int64("amount", cost),
	))
	defer span.End()

	if cost <= 0 {
		c.metrics.Mutation("spend", "invalid")
		return nil, c.fail(span, "spend", util.ErrInvalidAmount)
	}

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	start := time.Now()
	balance, event, err := c.store.ApplyDebit(storeCtx, accountID, cost)
	c.metrics.ObserveStore("apply_debit", start)
	if err != nil {
		c.metrics.Mutation("spend", outcome(err))
		c.afterFailedMutation(ctx, accountID, err)
		return nil, c.fail(span, "spend", err)
	}

	c.propagate(ctx, accountID, balance, event)
	c.metrics.Mutation("spend", "ok")
	span.SetAttributes(attribute.Int64("balance", balance))
	return &Mutation{Balance: balance, Event: event}, nil
}

// Recharge credits amount under an idempotency reference. Replaying a
// reference is a success that returns the current balance.
func (c *coordinator) Recharge(ctx context.Context, accountID, amount int64, reference string) (*Mutation, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.Recharge", trace.WithAttributes(
		attribute.Int64("account.id", accountID),
		attribute.Int64("amount", amount),
		attribute.String("reference", reference),
	))
	defer span.End()

	if amount <= 0 {
		c.metrics.Mutation("recharge", "invalid")
		return nil, c.fail(span, "recharge", util.ErrInvalidAmount)
	}
	if reference == "" {
		c.metrics.Mutation("recharge", "invalid")
		return nil, c.fail(span, "recharge", fmt.Errorf("empty reference: %w", util.ErrInvalidInput))
	}

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	start := time.Now()
	balance, event, err := c.store.ApplyCredit(storeCtx, accountID, amount, reference)
	c.metrics.ObserveStore("apply_credit", start)
	if util.IsError(err, util.ErrDuplicateReference) {
		c.setCached(ctx, accountID, balance)
		c.metrics.Mutation("recharge", "replayed")
		span.SetAttributes(attribute.Bool("replayed", true), attribute.Int64("balance", balance))
		return &Mutation{Balance: balance, Event: event, Replayed: true}, nil
	}
	if err != nil {
		c.metrics.Mutation("recharge", outcome(err))
		c.afterFailedMutation(ctx, accountID, err)
		return nil, c.fail(span, "recharge", err)
	}

	c.propagate(ctx, accountID, balance, event)
	c.metrics.Mutation("recharge", "ok")
	span.SetAttributes(attribute.Int64("balance", balance))
	return &Mutation{Balance: balance, Event: event}, nil
}

// History returns the account's ledger events, newest first.
func (c *coordinator) History(ctx context.Context, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.History", trace.WithAttributes(attribute.Int64("account.id", accountID)))
	defer span.End()

	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, 0, c.fail(span, "history", fmt.Errorf("unknown event kind %q: %w", filter.Kind, util.ErrInvalidInput))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, 0, c.fail(span, "history", fmt.Errorf("negative limit or offset: %w", util.ErrInvalidInput))
	}

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	start := time.Now()
	events, total, err := c.store.ListEvents(storeCtx, accountID, filter)
	c.metrics.ObserveStore("list_events", start)
	if err != nil {
		return nil, 0, c.fail(span, "history", err)
	}
	return events, total, nil
}

// Invalidate drops the cached balance so the next read consults the store.
func (c *coordinator) Invalidate(ctx context.Context, accountID int64) {
	cacheCtx, cancel := c.cacheContext(ctx)
	defer cancel()
	c.cache.Invalidate(cacheCtx, accountID)
}

// propagate refreshes the cache with the balance the store committed and
// announces the event.
func (c *coordinator) propagate(ctx context.Context, accountID, balance int64, event *domain.LedgerEvent) {
	c.setCached(ctx, accountID, balance)

	pubCtx, cancel := c.cacheContext(ctx)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, event); err != nil {
		c.logger.Warn("Failed to publish ledger event", "account_id", accountID, "event_id", event.ID, "error", err)
	}
}

// afterFailedMutation drops the cached balance when the store failed for
// infrastructure reasons: the commit outcome is unknown to us.
func (c *coordinator) afterFailedMutation(ctx context.Context, accountID int64, err error) {
	if util.IsDomainError(err) {
		return
	}
	c.Invalidate(ctx, accountID)
}

// setCached writes an authoritative balance to the cache.
func (c *coordinator) setCached(ctx context.Context, accountID, balance int64) {
	cacheCtx, cancel := c.cacheContext(ctx)
	defer cancel()
	c.cache.Set(cacheCtx, accountID, balance, c.cfg.CacheTTL)
}

// cacheContext detaches ctx from the caller's cancellation. Once the store
// has answered, the cache must follow even if the client has gone away.
func (c *coordinator) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CacheTimeout)
}

func (c *coordinator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.StoreTimeout)
}

// fail classifies err, records it on the span and returns it. Errors outside
// the domain taxonomy become ErrStoreUnavailable.
func (c *coordinator) fail(span trace.Span, op string, err error) error {
	if !util.IsDomainError(err) {
		err = fmt.Errorf("%s: %w: %w", op, util.ErrStoreUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return err
	}
	span.SetAttributes(attribute.String("outcome", err.Error()))
	return fmt.Errorf("%s: %w", op, err)
}

func outcome(err error) string {
	switch {
	case util.IsError(err, util.ErrInsufficientBalance):
		return "insufficient"
	case util.IsError(err, util.ErrNotFound):
		return "not_found"
	case util.IsError(err, util.ErrConflict):
		return "conflict"
	case util.IsDomainError(err):
		return "invalid"
	default:
		return "unavailable"
	}
}
