package controller

import (
	"fmt"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/scaffold"
	"github.com/GoCodeAlone/scaffold/metrics"
	"github.com/GoCodeAlone/scaffold/security"
)

// Loader mounts registered controllers onto a router and reports the result:
// conflicts as warnings, aggregate route counts as metrics, and the full
// sorted route table at debug verbosity.
type Loader struct {
	registry *Registry
	routes   *scaffold.RouteRegistry
	security *security.Provider
	logger   scaffold.Logger
	metrics  *metrics.Collector
}

// NewLoader creates a loader. The metrics collector may be nil.
func NewLoader(registry *Registry, routes *scaffold.RouteRegistry, provider *security.Provider, logger scaffold.Logger, collector *metrics.Collector) *Loader {
	return &Loader{
		registry: registry,
		routes:   routes,
		security: provider,
		logger:   logger,
		metrics:  collector,
	}
}

// Load wires every registered controller under contextRoot. A single failing
// controller is logged and skipped; an empty registry is fatal. After all
// controllers are processed, conflicts are logged as warnings and counts
// published to metrics.
func (l *Loader) Load(router chi.Router, contextRoot string) error {
	controllers := l.registry.All()
	if len(controllers) == 0 {
		return ErrNoControllers
	}

	loaded := 0
	for _, c := range controllers {
		if err := l.loadController(router, contextRoot, c); err != nil {
			l.logger.Error("Failed to load controller, skipping", "controller", c.Name(), "error", err)
			continue
		}
		loaded++
	}

	conflicts := l.routes.DetectConflicts()
	for _, msg := range conflicts {
		l.logger.Warn(msg)
	}

	l.publishMetrics(len(conflicts))
	l.logger.Info("Controllers loaded",
		"loaded", loaded, "skipped", len(controllers)-loaded,
		"routes", l.routes.Count(), "conflicts", len(conflicts))

	if scaffold.DebugEnabled(l.logger) {
		for _, route := range l.routes.SortedRoutes() {
			l.logger.Debug("Route", "method", route.Method, "path", route.Path, "secure", route.Secure, "source", route.Source)
		}
	}
	return nil
}

// loadController dispatches on the controller style. Panics raised while
// binding routes (for example conflicting chi wildcard names) are converted
// into per-unit errors so one bad controller can't take down the load.
func (l *Loader) loadController(router chi.Router, contextRoot string, c Controller) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrControllerPanic, rec)
		}
	}()

	// Advanced controllers win when both styles are implemented.
	switch ctrl := c.(type) {
	case RouterInitializer:
		return l.loadAdvanced(router, contextRoot, ctrl)
	case HandlerProvider:
		return l.loadDeclarative(router, contextRoot, ctrl)
	default:
		return ErrUnsupportedController
	}
}

// loadDeclarative binds each handler entry with its middleware chain (extra
// middlewares first, then the security gate, then the handler) and registers
// the route with the registry.
func (l *Loader) loadDeclarative(router chi.Router, contextRoot string, c HandlerProvider) error {
	for _, h := range c.Handlers() {
		if h.Func == nil {
			return fmt.Errorf("handler %s %s has no function", h.Method, h.Path)
		}

		fullPath := scaffold.NormalizePath(joinPath(contextRoot, c.Route(), h.Path))
		mode := l.security.ResolveMode(h.Secure)

		gate := l.security.Middleware(security.RouteMeta{
			Mode:     mode,
			Source:   c.Name(),
			FullPath: fullPath,
			Method:   h.Method,
		})

		chain := router.With(h.Middlewares...).With(gate)
		chain.Method(string(h.Method), fullPath, h.Func)

		l.routes.Register(scaffold.RegisteredRoute{
			Method: h.Method,
			Path:   fullPath,
			Secure: mode,
			Source: c.Name(),
		})
	}
	return nil
}

// loadAdvanced hands the controller a fresh sub-router mounted at
// contextRoot + Route(). The controller wires itself and is not tracked.
func (l *Loader) loadAdvanced(router chi.Router, contextRoot string, c RouterInitializer) error {
	sub := chi.NewRouter()
	if err := c.InitRoutes(sub, l.logger, l.security); err != nil {
		return fmt.Errorf("initializing routes: %w", err)
	}

	mount := scaffold.NormalizePath(joinPath(contextRoot, c.Route()))
	router.Mount(mount, sub)
	l.logger.Debug("Mounted advanced controller", "controller", c.Name(), "mount", mount)
	return nil
}

// publishMetrics aggregates route counts by (method, secure mode).
func (l *Loader) publishMetrics(conflicts int) {
	counts := make(map[[2]string]int)
	for _, route := range l.routes.Routes() {
		counts[[2]string{string(route.Method), string(route.Secure)}]++
	}
	for key, count := range counts {
		l.metrics.SetRoutes(key[0], key[1], float64(count))
	}
	l.metrics.SetConflicts(float64(conflicts))
}

func joinPath(parts ...string) string {
	joined := ""
	for _, p := range parts {
		if p == "" || p == "/" {
			continue
		}
		if p[0] != '/' {
			p = "/" + p
		}
		joined += p
	}
	if joined == "" {
		return "/"
	}
	return joined
}
