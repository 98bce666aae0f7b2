package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/auth"
	"github.com/upb/ai-governance/config"
	"github.com/upb/ai-governance/internal/observability"
	"github.com/upb/ai-governance/middleware"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
	"github.com/upb/ai-governance/repositories/postgres"
	"github.com/upb/ai-governance/services/admin"
	"github.com/upb/ai-governance/services/fallback"
	"github.com/upb/ai-governance/services/governance"
	"github.com/upb/ai-governance/services/ledger"
	"github.com/upb/ai-governance/services/policy"
	"github.com/upb/ai-governance/services/ratelimit"
	"github.com/upb/ai-governance/services/registry"
	"github.com/upb/ai-governance/services/rulecache"
)

// Dependencies holds every wired component of the governance service.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Redis   *redis.Client // nil when window counters live in memory
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled

	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories
	TxManager   repositories.TransactionManager

	// Governance components
	Registry       *registry.Registry
	CatalogWatcher *registry.CatalogWatcher // nil without a catalog file
	Policies       *policy.PolicyService
	FallbackRules  *fallback.RuleService
	Router         *fallback.Router
	Ledger         *ledger.Service
	Counter        ratelimit.Counter
	Governance     *governance.Service
	Admin          *admin.Service

	// Auth
	TokenValidator *auth.Validator
	AuthMiddleware *middleware.AuthMiddleware

	stopCh    chan struct{}
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewDependencies opens the database and wires all components
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, logger, factory)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires all components over an existing repository factory
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger, factory *postgres.RepositoryFactory) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
		Repos:       factory.NewRepositories(),
		TxManager:   factory.GetTransactionManager(),
		stopCh:      make(chan struct{}),
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if err := deps.initCounter(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize window counters: %w", err)
	}

	if err := deps.initRegistry(ctx, cfg); err != nil {
		deps.closeRedis()
		return nil, fmt.Errorf("failed to initialize model registry: %w", err)
	}

	deps.initServices(cfg)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Int("models", deps.Registry.Len()),
		zap.String("ledger_backend", cfg.Governance.LedgerBackend),
		zap.Bool("redis_windows", deps.Redis != nil),
		zap.Bool("strict_windows", cfg.Governance.StrictWindows))
	return deps, nil
}

// initCounter picks Redis window counters when a URL is configured
func (d *Dependencies) initCounter(cfg *config.Config) error {
	if !cfg.Redis.Enabled() {
		d.Counter = ratelimit.NewMemoryCounter()
		d.Logger.Info("using in-process window counters")
		return nil
	}

	client, err := ratelimit.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	d.Redis = client
	d.Counter = ratelimit.NewRedisCounter(client, cfg.Redis.KeyPrefix, d.Logger)
	d.Logger.Info("using Redis window counters", zap.String("prefix", cfg.Redis.KeyPrefix))
	return nil
}

func (d *Dependencies) initRegistry(ctx context.Context, cfg *config.Config) error {
	d.Registry = registry.New(d.Repos.Models, cfg.Governance.ModelCatalogPath, d.Metrics, d.Logger)
	if err := d.Registry.Load(ctx); err != nil {
		return err
	}

	if cfg.Governance.ModelCatalogPath != "" && cfg.Governance.WatchModelCatalog {
		watcher, err := registry.NewCatalogWatcher(d.Registry, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create catalog watcher: %w", err)
		}
		d.CatalogWatcher = watcher
	}
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	gov := cfg.Governance

	policyCache := rulecache.New[*models.GuardrailPolicy](gov.RuleCacheSize, gov.RuleCacheTTL)
	ruleCache := rulecache.New[*models.FallbackRule](gov.RuleCacheSize, gov.RuleCacheTTL)
	d.Policies = policy.NewPolicyService(d.Repos.Policies, policyCache, d.Metrics, d.Logger)
	d.FallbackRules = fallback.NewRuleService(d.Repos.FallbackRules, ruleCache, d.Metrics, d.Logger)
	d.Router = fallback.NewRouter(d.FallbackRules)

	usageStore := d.Repos.Usage
	if gov.LedgerBackend == config.LedgerBackendMemory {
		usageStore = ledger.NewMemoryStore()
		d.Logger.Warn("usage ledger is in memory; counters are lost on restart")
	}
	d.Ledger = ledger.NewService(usageStore, d.Logger)

	d.Governance = governance.NewService(
		d.Registry,
		d.Policies,
		d.Repos.PlanQuotas,
		d.Ledger,
		d.Counter,
		d.Router,
		governance.Options{StrictWindows: gov.StrictWindows},
		d.Metrics,
		d.Logger,
	)

	d.Admin = admin.NewService(d.Repos, d.TxManager, d.Registry, d.Policies, d.FallbackRules, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT_SECRET not set, admin endpoints will reject every token")
	}
	d.TokenValidator = auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.TokenValidator, d.Logger)
}

// StartWorkers launches cache cleanup, usage retention, and the catalog watcher.
// They run until Close.
func (d *Dependencies) StartWorkers(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)
	gov := d.Config.Governance

	d.goWorker(func() { d.Policies.StartCacheCleanup(gov.CacheCleanupInterval, d.stopCh) })
	d.goWorker(func() { d.FallbackRules.StartCacheCleanup(gov.CacheCleanupInterval, d.stopCh) })
	if gov.UsageRetention > 0 {
		d.goWorker(func() { d.Ledger.StartCleanupWorker(ctx, gov.RetentionInterval, gov.UsageRetention) })
	}

	if d.CatalogWatcher != nil {
		if err := d.CatalogWatcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start catalog watcher: %w", err)
		}
	}
	return nil
}

func (d *Dependencies) goWorker(fn func()) {
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		fn()
	}()
}

// HealthChecks returns the probes used by the readiness endpoint, beyond the database
func (d *Dependencies) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"model_catalog": func(context.Context) error {
			if d.Registry.Len() == 0 {
				return errors.New("model catalog is empty")
			}
			return nil
		},
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close gracefully shuts down all dependencies. Later calls return the first result.
func (d *Dependencies) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { d.closeErr = d.close(ctx) })
	return d.closeErr
}

func (d *Dependencies) close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.cancel != nil {
		d.cancel()
	}
	close(d.stopCh)

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background workers did not stop: %w", ctx.Err()))
	}

	if d.CatalogWatcher != nil {
		if err := d.CatalogWatcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop catalog watcher: %w", err))
		}
	}

	d.closeRedis()

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}

func (d *Dependencies) closeRedis() {
	if d.Redis == nil {
		return
	}
	if err := d.Redis.Close(); err != nil {
		d.Logger.Warn("failed to close Redis client", zap.Error(err))
	}
	d.Redis = nil
}
