// Package app wires the scaffold framework into a runnable HTTP application:
// hook phases around server startup, controller loading, scheduler
// initialization with cluster awareness, and coordinated shutdown.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/scaffold"
	"github.com/GoCodeAlone/scaffold/controller"
	"github.com/GoCodeAlone/scaffold/metrics"
	"github.com/GoCodeAlone/scaffold/scheduler"
	"github.com/GoCodeAlone/scaffold/security"
)

// Bootstrap errors
var (
	// ErrSchedulerClusterConflict is raised when standalone scheduling is
	// combined with cluster mode, where every worker would fire every job.
	ErrSchedulerClusterConflict = errors.New("standalone scheduler mode cannot be combined with cluster mode")

	// ErrUnknownJobModule is returned by the job resolver for unregistered
	// module references.
	ErrUnknownJobModule = errors.New("unknown job module")

	// ErrAlreadyStarted guards against double Start.
	ErrAlreadyStarted = errors.New("application already started")
)

// SchedulerServiceName is the name the scheduler registers under in the
// service registry during STARTUP.
const SchedulerServiceName = "scheduler"

// Application assembles the framework components around an HTTP server.
type Application struct {
	cfg         *scaffold.Config
	logger      scaffold.Logger
	hooks       *scaffold.HookManager
	services    *scaffold.ServiceRegistry
	routes      *scaffold.RouteRegistry
	controllers *controller.Registry
	security    *security.Provider
	scheduler   *scheduler.Service
	collector   *metrics.Collector
	router      chi.Router
	server      *http.Server
	jobModules  map[string]scheduler.Job
	leaderCheck scheduler.LeaderCheck
	started     bool
}

// Option configures an Application.
type Option func(*Application)

// WithLeaderCheck installs the leadership probe for leaderOnly jobs.
func WithLeaderCheck(check scheduler.LeaderCheck) Option {
	return func(a *Application) {
		a.leaderCheck = check
	}
}

// New constructs an application: hook manager, service registry, route
// registry, security provider, metrics collector, controller registry, and
// scheduler, wired around a chi router.
func New(cfg *scaffold.Config, logger scaffold.Logger, opts ...Option) *Application {
	a := &Application{
		cfg:         cfg,
		logger:      logger,
		hooks:       scaffold.NewHookManager(logger),
		routes:      scaffold.NewRouteRegistry(),
		controllers: controller.NewRegistry(),
		collector:   metrics.New(),
		router:      chi.NewRouter(),
		jobModules:  make(map[string]scheduler.Job),
	}
	a.services = scaffold.NewServiceRegistry(logger)
	a.security = security.NewProvider(cfg, a.hooks, a.services, logger, a.collector)

	for _, opt := range opts {
		opt(a)
	}

	var schedOpts []scheduler.Option
	if a.leaderCheck != nil {
		schedOpts = append(schedOpts, scheduler.WithLeaderCheck(a.leaderCheck))
	}
	a.scheduler = scheduler.NewService(cfg.Scheduler, logger, a.collector, schedOpts...)

	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)

	return a
}

// Hooks returns the lifecycle hook manager.
func (a *Application) Hooks() *scaffold.HookManager { return a.hooks }

// Services returns the service registry.
func (a *Application) Services() *scaffold.ServiceRegistry { return a.services }

// Controllers returns the controller registry.
func (a *Application) Controllers() *controller.Registry { return a.controllers }

// Routes returns the route registry.
func (a *Application) Routes() *scaffold.RouteRegistry { return a.routes }

// Scheduler returns the scheduler service.
func (a *Application) Scheduler() *scheduler.Service { return a.scheduler }

// Security returns the security provider.
func (a *Application) Security() *security.Provider { return a.security }

// Metrics returns the metrics collector.
func (a *Application) Metrics() *metrics.Collector { return a.collector }

// Router returns the HTTP router, useful for tests and embedding.
func (a *Application) Router() chi.Router { return a.router }

// RegisterJobModule binds a module reference from scheduler config to an
// executable job. Modules must be registered before Start.
func (a *Application) RegisterJobModule(moduleRef string, job scheduler.Job) {
	a.jobModules[moduleRef] = job
}

// Start runs the startup sequence: INITIALIZE, scheduler/cluster validation,
// STARTUP (scheduler service registration and job initialization), PRE_INIT,
// CUSTOM_MIDDLEWARE (best effort), built-in endpoints, controller loading,
// POST_INIT, then the HTTP listener.
func (a *Application) Start(ctx context.Context) error {
	if a.started {
		return ErrAlreadyStarted
	}

	hctx := a.hookContext(nil)

	if err := a.hooks.Emit(ctx, scaffold.PhaseInitialize, hctx); err != nil {
		return err
	}

	schedulerActive, err := a.validateScheduler()
	if err != nil {
		return err
	}

	if err := a.hooks.Emit(ctx, scaffold.PhaseStartup, hctx); err != nil {
		return err
	}

	if err := a.services.Register(SchedulerServiceName, a.scheduler); err != nil {
		return err
	}
	if schedulerActive {
		if err := a.scheduler.Init(a.resolveJobModule); err != nil {
			return fmt.Errorf("scheduler init: %w", err)
		}
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	if err := a.hooks.Emit(ctx, scaffold.PhasePreInit, hctx); err != nil {
		return err
	}

	// Best effort: subscriber errors are logged and swallowed by the manager.
	_ = a.hooks.Emit(ctx, scaffold.PhaseCustomMiddleware, hctx)

	a.router.Get("/__routes", a.handleRoutes)
	a.router.Method(http.MethodGet, "/metrics", a.collector.Handler())

	if a.cfg.ControllersPath != "" {
		a.logger.Info("Controllers are registered explicitly; controllersPath is ignored", "controllersPath", a.cfg.ControllersPath)
	}
	loader := controller.NewLoader(a.controllers, a.routes, a.security, a.logger, a.collector)
	if err := loader.Load(a.router, a.cfg.ContextRoot); err != nil {
		return fmt.Errorf("loading controllers: %w", err)
	}
	a.collector.SetServices(float64(a.services.Count()))

	if err := a.hooks.Emit(ctx, scaffold.PhasePostInit, hctx); err != nil {
		return err
	}

	a.server = &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("HTTP server listening", "addr", a.cfg.Listen, "contextRoot", a.cfg.ContextRoot)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server terminated", "error", err)
		}
	}()

	a.started = true
	return nil
}

// Stop runs the shutdown sequence: SHUTDOWN hook, scheduler cancellation,
// HTTP server shutdown, then service teardown, all under the configured
// timeout budget. A SHUTDOWN hook failure is reported but never blocks the
// rest of the sequence.
func (a *Application) Stop(ctx context.Context) error {
	budget := time.Duration(a.cfg.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var errs []error

	if err := a.hooks.Emit(shutdownCtx, scaffold.PhaseShutdown, a.hookContext(nil)); err != nil {
		errs = append(errs, err)
	}

	a.scheduler.CancelAll()
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	a.services.ShutdownAll(shutdownCtx)
	a.started = false
	return errors.Join(errs...)
}

// validateScheduler applies the cluster interaction policy: standalone mode
// with clustering is a fatal configuration error; attached mode with
// clustering disables the scheduler to avoid duplicate firing across
// workers. Returns whether the scheduler should run.
func (a *Application) validateScheduler() (bool, error) {
	if !a.cfg.Scheduler.Enabled {
		return false, nil
	}
	if !a.cfg.Cluster.Enabled {
		return true, nil
	}

	switch a.cfg.Scheduler.Mode {
	case scaffold.SchedulerModeStandalone:
		return false, ErrSchedulerClusterConflict
	default:
		a.logger.Info("Cluster mode active, scheduler disabled on this worker", "mode", a.cfg.Scheduler.Mode)
		return false, nil
	}
}

// resolveJobModule maps a config module reference to a registered job.
func (a *Application) resolveJobModule(moduleRef string) (scheduler.Job, error) {
	job, ok := a.jobModules[moduleRef]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobModule, moduleRef)
	}
	return job, nil
}

// handleRoutes serves the sorted route table as JSON. Conflicts are surfaced
// only via logs and metrics, never here.
func (a *Application) handleRoutes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(a.routes.SortedRoutes()); err != nil {
		a.logger.Error("Failed to encode route table", "error", err)
	}
}

func (a *Application) hookContext(r *http.Request) *scaffold.HookContext {
	return &scaffold.HookContext{
		Config:   a.cfg,
		Logger:   a.logger,
		Hooks:    a.hooks,
		Services: a.services,
		Request:  r,
	}
}
