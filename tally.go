package tally

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/tally/lock"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/proof"
	"github.com/xraph/tally/proof/local"
	"github.com/xraph/tally/store"
)

const (
	// SystemIssuer issues and reviews every operation created by settlement.
	SystemIssuer = "tally-service"

	// SettleLockKey guards the scheduled settlement pass across replicas.
	SettleLockKey = "tally:settle"

	DefaultCurrency          = "brl"
	DefaultSettleInterval    = 24 * time.Hour
	DefaultSettleConcurrency = 8
)

// Engine wires the operation, plan and subscription services to a store and
// runs the periodic settlement worker.
type Engine struct {
	store   store.Store
	proofs  proof.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	locker  lock.Locker

	now      func() time.Time
	location *time.Location
	currency string

	operations    *OperationService
	plans         *PlanService
	subscriptions *SubscriptionService

	// Background worker
	stopChan chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// Configuration
	settleInterval    time.Duration
	settleConcurrency int
	settleOnStart     bool
	schedulerDisabled bool
	migrateDisabled   bool
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             s,
		plugins:           plugin.NewRegistry(),
		logger:            slog.Default(),
		now:               time.Now,
		location:          time.UTC,
		currency:          DefaultCurrency,
		stopChan:          make(chan struct{}),
		settleInterval:    DefaultSettleInterval,
		settleConcurrency: DefaultSettleConcurrency,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.proofs == nil {
		e.proofs = local.New("")
	}

	env := serviceEnv{
		plugins:  e.plugins,
		logger:   e.logger,
		now:      e.now,
		location: e.location,
		currency: e.currency,
	}
	e.operations = &OperationService{
		serviceEnv: env,
		ops:        store.Operations(s),
		proofs:     e.proofs,
	}
	e.plans = &PlanService{
		serviceEnv: env,
		plans:      store.Plans(s),
		subs:       store.Subscriptions(s),
	}
	e.subscriptions = &SubscriptionService{
		serviceEnv:  env,
		subs:        store.Subscriptions(s),
		plans:       store.Plans(s),
		operations:  e.operations,
		concurrency: e.settleConcurrency,
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.plugins.Register(p); err != nil {
			e.logger.Warn("plugin registration skipped", "plugin", p.Name(), "error", err)
		}
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the calendar used for month stepping, day comparisons
// and descriptions. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithCurrency sets the ledger currency. Amounts in any other currency are
// rejected.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = strings.ToLower(currency)
		}
	}
}

// WithProofStore sets where credit proofs are written. Defaults to the local
// filesystem store.
func WithProofStore(ps proof.Store) Option {
	return func(e *Engine) {
		e.proofs = ps
	}
}

// WithSettleInterval sets how often the worker settles active subscriptions.
func WithSettleInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.settleInterval = d
		}
	}
}

// WithSettleConcurrency bounds how many subscriptions settle in parallel.
func WithSettleConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.settleConcurrency = n
		}
	}
}

// WithSettleOnStart runs a settlement pass as soon as the worker starts.
func WithSettleOnStart(enabled bool) Option {
	return func(e *Engine) {
		e.settleOnStart = enabled
	}
}

// WithLocker makes each scheduled pass acquire SettleLockKey first.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithoutScheduler disables the settlement worker. Settlement still runs on
// enroll and end, and through SettleActive.
func WithoutScheduler() Option {
	return func(e *Engine) {
		e.schedulerDisabled = true
	}
}

// WithoutMigrate makes Start skip store migrations, for schemas managed
// out of band.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.migrateDisabled = true
	}
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Operations returns the operation service.
func (e *Engine) Operations() *OperationService { return e.operations }

// Plans returns the plan service.
func (e *Engine) Plans() *PlanService { return e.plans }

// Subscriptions returns the subscription service.
func (e *Engine) Subscriptions() *SubscriptionService { return e.subscriptions }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Currency returns the ledger currency.
func (e *Engine) Currency() string { return e.currency }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start migrates the store and begins the settlement worker.
func (e *Engine) Start(ctx context.Context) error {
	if !e.migrateDisabled {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("tally: migrate: %w", err)
		}
	}

	e.plugins.EmitInit(ctx, e)

	if e.schedulerDisabled {
		e.logger.Info("tally started", "scheduler", false, "currency", e.currency)
		return nil
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	e.wg.Add(1)
	go e.settleWorker(workerCtx)

	e.logger.Info("tally started",
		"scheduler", true,
		"settle_interval", e.settleInterval,
		"settle_concurrency", e.settleConcurrency,
		"currency", e.currency,
		"distributed_lock", e.locker != nil,
	)

	return nil
}

// Stop shuts down the worker, notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		if e.cancel != nil {
			e.cancel()
		}
	})
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// settleWorker runs SettlePass on every tick until Stop.
func (e *Engine) settleWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.settleInterval)
	defer ticker.Stop()

	if e.settleOnStart {
		e.runPass(ctx)
	}

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.runPass(ctx)
		}
	}
}

func (e *Engine) runPass(ctx context.Context) {
	report, ran, err := e.SettlePass(ctx)
	if !ran {
		return
	}
	if err != nil {
		e.logger.Error("settlement pass finished with failures",
			"processed", report.Processed,
			"operations", report.Operations,
			"failed", len(report.Failed),
			"error", err,
		)
	}
}

// SettlePass is one scheduler tick: it takes the settlement lock when a
// Locker is configured and settles every active subscription. ran is false
// when another holder owns the lock.
func (e *Engine) SettlePass(ctx context.Context) (report SettleReport, ran bool, err error) {
	if e.locker != nil {
		acquired, err := e.locker.TryLock(ctx, SettleLockKey, e.settleInterval)
		if err != nil {
			e.logger.Warn("settlement lock unavailable", "key", SettleLockKey, "error", err)
			return SettleReport{}, false, fmt.Errorf("tally: acquire settle lock: %w", err)
		}
		if !acquired {
			e.logger.Debug("settlement pass skipped, lock held elsewhere", "key", SettleLockKey)
			return SettleReport{}, false, nil
		}
		defer func() {
			if uerr := e.locker.Unlock(context.WithoutCancel(ctx), SettleLockKey); uerr != nil {
				e.logger.Warn("settlement lock release failed", "key", SettleLockKey, "error", uerr)
			}
		}()
	}

	report, err = e.subscriptions.SettleActive(ctx)
	return report, true, err
}

// serviceEnv is the collaborator set shared by all services.
type serviceEnv struct {
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time
	location *time.Location
	currency string
}
