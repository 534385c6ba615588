// Package controller mounts registered controllers onto a chi router and
// tracks their routes in the framework's route registry.
//
// Controllers are compiled in and registered explicitly by name. The name is
// the route record's source identifier, so conflict messages point back at
// the controller that registered the colliding route. Two controller styles
// are supported: declarative controllers expose a base route and a handler
// list that the loader wires and tracks, while advanced controllers receive a
// fresh sub-router and wire themselves without registry tracking.
package controller

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/scaffold"
	"github.com/GoCodeAlone/scaffold/security"
)

// Loader errors
var (
	// ErrNoControllers is returned when Load runs against an empty registry.
	// Unlike per-controller errors, this is fatal.
	ErrNoControllers = errors.New("no controllers registered")

	// ErrControllerAlreadyRegistered guards against duplicate names.
	ErrControllerAlreadyRegistered = errors.New("controller already registered")

	// ErrUnsupportedController marks a controller implementing neither the
	// declarative nor the advanced style. Per-unit: logged and skipped.
	ErrUnsupportedController = errors.New("controller implements neither HandlerProvider nor RouterInitializer")

	// ErrControllerPanic wraps a panic raised while binding a controller's routes.
	ErrControllerPanic = errors.New("controller route binding panicked")
)

// Controller is the base interface; Name doubles as the route source
// identifier in conflict reports.
type Controller interface {
	Name() string
}

// Handler is one declarative route entry. Secure accepts "basic", "jwt",
// or boolean true (jwt); anything else resolves to none. Middlewares run
// before the security gate, the gate runs before Func.
type Handler struct {
	Method      scaffold.Method
	Path        string
	Secure      any
	Middlewares []func(http.Handler) http.Handler
	Func        http.HandlerFunc
}

// HandlerProvider is the declarative controller style: the loader composes
// contextRoot + Route() + handler path, builds the middleware chain, binds
// it, and registers the route.
type HandlerProvider interface {
	Controller

	// Route returns the controller's base path, prefixed to every handler path.
	Route() string

	// Handlers returns the declarative route entries.
	Handlers() []Handler
}

// RouterInitializer is the advanced controller style: the controller receives
// a fresh sub-router mounted at contextRoot + Route() and takes full
// responsibility for its own wiring. Its routes are not tracked by the
// route registry.
type RouterInitializer interface {
	Controller

	// Route returns the mount point for the controller's sub-router.
	Route() string

	// InitRoutes wires the controller's routes onto the sub-router.
	InitRoutes(r chi.Router, logger scaffold.Logger, provider *security.Provider) error
}

// Registry is an ordered, name-keyed store of controllers.
type Registry struct {
	mu          sync.Mutex
	names       []string
	controllers map[string]Controller
}

// NewRegistry creates an empty controller registry.
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]Controller)}
}

// Register adds a controller, preserving registration order.
func (r *Registry) Register(c Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.controllers[name]; exists {
		return fmt.Errorf("%w: %q", ErrControllerAlreadyRegistered, name)
	}
	r.controllers[name] = c
	r.names = append(r.names, name)
	return nil
}

// All returns the controllers in registration order.
func (r *Registry) All() []Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Controller, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.controllers[name])
	}
	return out
}

// Len returns the number of registered controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}
