package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/access"
	"github.com/xraph/conductor/cron"
	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/health"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/manager"
	mw "github.com/xraph/conductor/middleware"
	"github.com/xraph/conductor/observability"
	"github.com/xraph/conductor/queue"
	"github.com/xraph/conductor/store/memory"
	pgstore "github.com/xraph/conductor/store/postgres"
	redisstore "github.com/xraph/conductor/store/redis"
	"github.com/xraph/conductor/worker"
)

// instrumentationName is the OTel scope used for engine-built tracers and
// meters.
const instrumentationName = "github.com/xraph/conductor"

// migrator is implemented by stores that ship a schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

// DefaultAppID is the forge application ID placed on handler contexts.
const DefaultAppID = "conductor"

// Engine owns one queue and one worker pool per job type together with
// the lifecycle manager, the cron scheduler and the health monitor.
type Engine struct {
	cfg    conductor.Config
	logger *slog.Logger
	appID  string

	store     job.Store
	closeFunc func() error

	handlers   *job.Registry
	extensions *ext.Registry
	extraExts  []ext.Extension
	mws        []mw.Middleware

	guard    access.Guard
	quotas   manager.QuotaProvider
	operator health.Operator

	concurrency map[jobtype.Type]int
	queues      *queue.Manager
	pools       map[jobtype.Type]*worker.Pool
	scheduler   *cron.Scheduler
	manager     *manager.Manager
	durations   *health.Durations
	monitor     *health.Monitor

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricFactory  gu.MetricFactory

	mu          sync.Mutex
	running     bool
	stopMonitor context.CancelFunc
	monitorDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the job store. Without it the engine connects to
// PostgreSQL when cfg.Postgres.DSN is set, to Redis when cfg.Redis.Addr is
// set, and otherwise uses the memory store.
func WithStore(s job.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithHandler registers the handler for one job type.
func WithHandler(t jobtype.Type, h job.HandlerFunc) Option {
	return func(eng *Engine) { eng.handlers.Handle(t, h) }
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithAppID sets the forge application ID used for handler scopes.
func WithAppID(appID string) Option {
	return func(eng *Engine) { eng.appID = appID }
}

// WithGuard replaces the capability table guard built from config.
func WithGuard(g access.Guard) Option {
	return func(eng *Engine) { eng.guard = g }
}

// WithQuotaProvider sets the per-workspace quota source. Its
// MaxActiveJobs also bounds each workspace at the queue gate.
func WithQuotaProvider(q manager.QuotaProvider) Option {
	return func(eng *Engine) { eng.quotas = q }
}

// WithOperator replaces the default operator, which pauses and resumes
// queues in the engine's queue manager.
func WithOperator(op health.Operator) Option {
	return func(eng *Engine) { eng.operator = op }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.extraExts = append(eng.extraExts, e) }
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithTracerProvider sets the OTel TracerProvider for the tracing
// middleware. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets the OTel MeterProvider for the metrics
// middleware. The global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// WithMetricFactory sets the factory behind the lifecycle counters
// extension.
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) { eng.metricFactory = f }
}

// Build validates cfg and wires every subsystem. Any failure to construct
// a queue or pool is wrapped in conductor.ErrQueueInitialization and no
// engine is returned.
func Build(cfg conductor.Config, opts ...Option) (*Engine, error) {
	eng := &Engine{
		cfg:      cfg,
		logger:   slog.Default(),
		appID:    DefaultAppID,
		handlers: job.NewRegistry(),
		pools:    make(map[jobtype.Type]*worker.Pool, len(jobtype.All)),
	}
	for _, opt := range opts {
		opt(eng)
	}

	concurrency, err := resolveConcurrency(cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	eng.concurrency = concurrency

	if eng.store == nil {
		eng.store, err = eng.defaultStore()
		if err != nil {
			return nil, err
		}
	}

	if eng.guard == nil {
		table, tableErr := loadTable(cfg.CapabilitiesFile)
		if tableErr != nil {
			return nil, tableErr
		}
		eng.guard = access.NewGuard(table)
	}

	eng.extensions = ext.NewRegistry(eng.logger)
	if eng.metricFactory != nil {
		eng.extensions.Register(observability.NewMetricsExtensionWithFactory(eng.metricFactory))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	eng.durations = health.NewDurations(health.DefaultSmoothing)
	eng.extensions.Register(eng.durations)
	for _, e := range eng.extraExts {
		eng.extensions.Register(e)
	}

	eng.queues = queue.NewManager(eng.queueConfigs(), queue.WithWorkspaceResolver(eng.resolveWorkspace))

	executor := worker.NewExecutor(eng.handlers, eng.extensions, eng.store, eng.logger, eng.middleware()...)
	for _, t := range jobtype.All {
		p := worker.NewPool(t, eng.store, executor, eng.extensions, eng.logger,
			worker.WithConcurrency(concurrency[t]),
			worker.WithPollInterval(cfg.PollInterval),
			worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
			worker.WithStaleJobThreshold(cfg.StaleJobThreshold),
			worker.WithQueueManager(eng.queues),
		)
		eng.pools[t] = p
	}

	// The scheduler and the manager refer to each other: occurrences are
	// enqueued through the manager so quotas apply, hooks fire and pools
	// wake.
	var schedOpts []cron.SchedulerOption
	if cfg.Cron.TickInterval > 0 {
		schedOpts = append(schedOpts, cron.WithTickInterval(cfg.Cron.TickInterval))
	}
	eng.scheduler = cron.NewScheduler(
		func(ctx context.Context, e *job.Envelope) error { return eng.manager.EnqueueScheduled(ctx, e) },
		eng.extensions,
		eng.logger,
		schedOpts...,
	)

	mgrOpts := []manager.Option{
		manager.WithLogger(eng.logger),
		manager.WithExtensions(eng.extensions),
		manager.WithScheduler(eng.scheduler),
		manager.WithNotifier(eng.notify),
	}
	if eng.quotas != nil {
		mgrOpts = append(mgrOpts, manager.WithQuotaProvider(eng.quotas))
	}
	eng.manager = manager.New(eng.store, eng.guard, mgrOpts...)

	if eng.operator == nil {
		eng.operator = &queueOperator{queues: eng.queues, pools: eng.pools, logger: eng.logger}
	}
	eng.monitor = health.NewMonitor(eng.store, cfg.Health,
		health.WithConcurrency(concurrency),
		health.WithOperator(eng.operator),
		health.WithDurations(eng.durations),
		health.WithLogger(eng.logger),
	)

	return eng, nil
}

// resolveConcurrency applies per-type overrides keyed by type name over
// the registry defaults.
func resolveConcurrency(overrides map[string]int) (map[jobtype.Type]int, error) {
	out := make(map[jobtype.Type]int, len(jobtype.All))
	for _, t := range jobtype.All {
		out[t] = jobtype.MustLookup(t).DefaultConcurrency
	}
	for name, n := range overrides {
		t, err := jobtype.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("%w: concurrency override: %w", conductor.ErrQueueInitialization, err)
		}
		if n < jobtype.MinConcurrency || n > jobtype.MaxConcurrency {
			return nil, fmt.Errorf("%w: concurrency %d for %s outside [%d, %d]",
				conductor.ErrQueueInitialization, n, t, jobtype.MinConcurrency, jobtype.MaxConcurrency)
		}
		out[t] = n
	}
	return out, nil
}

func loadTable(path string) (access.Table, error) {
	if path == "" {
		return access.DefaultTable(), nil
	}
	t, err := access.LoadTable(path)
	if err != nil {
		return nil, fmt.Errorf("engine: capabilities: %w", err)
	}
	return t, nil
}

func (eng *Engine) defaultStore() (job.Store, error) {
	switch {
	case eng.cfg.Postgres.DSN != "":
		s, err := pgstore.New(context.Background(), eng.cfg.Postgres.DSN, pgstore.WithLogger(eng.logger))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", conductor.ErrQueueInitialization, err)
		}
		eng.closeFunc = s.Close
		return s, nil
	case eng.cfg.Redis.Addr != "":
		client := goredis.NewClient(&goredis.Options{
			Addr:     eng.cfg.Redis.Addr,
			Password: eng.cfg.Redis.Password,
			DB:       eng.cfg.Redis.DB,
		})
		eng.closeFunc = client.Close
		return redisstore.New(client, redisstore.WithLogger(eng.logger)), nil
	default:
		return memory.New(), nil
	}
}

func (eng *Engine) queueConfigs() []queue.Config {
	configs := make([]queue.Config, 0, len(jobtype.All))
	for _, t := range jobtype.All {
		configs = append(configs, queue.Config{
			Name:           jobtype.MustLookup(t).Queue,
			MaxConcurrency: eng.concurrency[t],
		})
	}
	return configs
}

// resolveWorkspace builds queue-gate limits for a workspace on first
// sight. Quota lookup failures leave the workspace without an active cap.
func (eng *Engine) resolveWorkspace(workspaceID string) queue.WorkspaceConfig {
	wc := queue.WorkspaceConfig{
		WorkspaceID: workspaceID,
		RateLimit:   eng.cfg.WorkspaceRate,
		RateBurst:   eng.cfg.WorkspaceBurst,
	}
	if eng.quotas == nil {
		return wc
	}
	q, err := eng.quotas.Quota(context.Background(), workspaceID)
	if err != nil {
		eng.logger.Warn("workspace quota lookup failed",
			slog.String("workspace_id", workspaceID),
			slog.String("error", err.Error()),
		)
		return wc
	}
	wc.MaxActive = q.MaxActiveJobs
	return wc
}

// middleware builds recover → tracing → metrics → logging → scope →
// timeout, then any user middleware.
func (eng *Engine) middleware() []mw.Middleware {
	tracing := mw.Tracing()
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	}

	mws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracing,
		metrics,
		mw.Logging(eng.logger),
		mw.Scope(eng.appID),
		mw.Timeout(eng.logger),
	}
	return append(mws, eng.mws...)
}

func (eng *Engine) notify(t jobtype.Type) {
	if p, ok := eng.pools[t]; ok {
		p.Notify()
	}
}

// Start checks the store, then starts every pool, the scheduler and the
// background health check. If anything fails to start, everything already
// started is stopped and the error wraps conductor.ErrQueueInitialization.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.running {
		return nil
	}

	if err := eng.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: store: %w", conductor.ErrQueueInitialization, err)
	}
	if m, ok := eng.store.(migrator); ok && eng.cfg.Postgres.AutoMigrate {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: migrate: %w", conductor.ErrQueueInitialization, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range jobtype.All {
		p := eng.pools[t]
		g.Go(func() error {
			if err := p.Start(gctx); err != nil {
				return fmt.Errorf("start %s pool: %w", t, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		eng.stopPools(context.WithoutCancel(ctx))
		return fmt.Errorf("%w: %w", conductor.ErrQueueInitialization, err)
	}

	if err := eng.scheduler.Start(ctx); err != nil {
		eng.stopPools(context.WithoutCancel(ctx))
		return fmt.Errorf("%w: scheduler: %w", conductor.ErrQueueInitialization, err)
	}

	if interval := eng.cfg.Health.CheckInterval; interval > 0 {
		monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		eng.stopMonitor = cancel
		eng.monitorDone = make(chan struct{})
		go func() {
			defer close(eng.monitorDone)
			_ = eng.monitor.Run(monitorCtx, interval)
		}()
	}

	eng.running = true
	eng.logger.Info("conductor engine started",
		slog.Int("job_types", len(eng.pools)),
		slog.Int("handlers", len(eng.handlers.Types())),
	)
	return nil
}

// Stop halts the health check and scheduler, drains every pool within
// cfg.ShutdownTimeout, emits the shutdown hook and closes any store
// connection the engine opened.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !eng.running {
		return nil
	}
	eng.running = false

	if eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	if eng.stopMonitor != nil {
		eng.stopMonitor()
		<-eng.monitorDone
		eng.stopMonitor = nil
	}

	var errs []error
	if err := eng.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := eng.stopPools(ctx); err != nil {
		errs = append(errs, err)
	}

	eng.extensions.EmitShutdown(ctx)

	if eng.closeFunc != nil {
		if err := eng.closeFunc(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	eng.logger.Info("conductor engine stopped")
	return errors.Join(errs...)
}

func (eng *Engine) stopPools(ctx context.Context) error {
	var g errgroup.Group
	for _, p := range eng.pools {
		g.Go(func() error { return p.Stop(ctx) })
	}
	return g.Wait()
}

// Manager returns the job lifecycle manager.
func (eng *Engine) Manager() *manager.Manager { return eng.manager }

// Monitor returns the health monitor.
func (eng *Engine) Monitor() *health.Monitor { return eng.monitor }

// Scheduler returns the recurring schedule scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Queues returns the queue gate manager.
func (eng *Engine) Queues() *queue.Manager { return eng.queues }

// Store returns the job store.
func (eng *Engine) Store() job.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Handlers returns the handler registry. Handlers may be registered
// before or after Start.
func (eng *Engine) Handlers() *job.Registry { return eng.handlers }

// Pool returns the worker pool for t.
func (eng *Engine) Pool(t jobtype.Type) (*worker.Pool, bool) {
	p, ok := eng.pools[t]
	return p, ok
}

// Concurrency returns the effective pool size for t.
func (eng *Engine) Concurrency(t jobtype.Type) int { return eng.concurrency[t] }

// Handle registers a typed handler for t.
func Handle[T any](eng *Engine, t jobtype.Type, handler func(ctx context.Context, payload T) error) {
	job.Register(eng.handlers, t, handler)
}
