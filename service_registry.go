package scaffold

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Stoppable is the capability interface for services that perform graceful
// shutdown. ShutdownAll prefers Stop over Close when both are implemented.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// Closable is the capability interface for services that release resources
// through a plain close.
type Closable interface {
	Close() error
}

// ServiceRegistry is a name-keyed store of opaque service handles with
// registration, lookup, and coordinated teardown. It is mutated during the
// startup phase and read thereafter; ShutdownAll must run exactly once.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
	logger   Logger
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry(logger Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]any),
		logger:   logger,
	}
}

// Register adds a service under a unique name, failing with
// ErrServiceAlreadyRegistered when the name is taken.
func (r *ServiceRegistry) Register(name string, service any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return fmt.Errorf("%w: %q", ErrServiceAlreadyRegistered, name)
	}
	r.services[name] = service
	return nil
}

// Set stores a service under name, overwriting any existing entry. When the
// instance implements neither Stoppable nor Closable a warning is logged,
// not an error.
func (r *ServiceRegistry) Set(name string, service any) {
	switch service.(type) {
	case Stoppable, Closable:
	default:
		r.logger.Warn("Service has no Stop or Close capability; it will be skipped at shutdown", "service", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = service
}

// Get retrieves a service by name, failing with ErrServiceNotFound when absent.
func (r *ServiceRegistry) Get(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, name)
	}
	return service, nil
}

// Lookup is the lenient read variant of Get.
func (r *ServiceRegistry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.services[name]
	return service, exists
}

// Has reports whether a service is registered under name.
func (r *ServiceRegistry) Has(name string) bool {
	_, exists := r.Lookup(name)
	return exists
}

// Remove deletes the named service, reporting whether it existed.
func (r *ServiceRegistry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.services[name]
	delete(r.services, name)
	return exists
}

// Names returns the registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a defensive copy of the service table.
func (r *ServiceRegistry) All() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.services))
	for name, service := range r.services {
		out[name] = service
	}
	return out
}

// Count returns the number of registered services.
func (r *ServiceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// ShutdownAll tears down every registered service: Stop when implemented,
// else Close, else a warning. Individual failures are logged with the service
// name and never block the remaining services. A teardown that outlives ctx
// is abandoned with a timeout error rather than hanging the sequence. The
// table is cleared unconditionally afterwards.
func (r *ServiceRegistry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	services := r.services
	r.services = make(map[string]any)
	r.mu.Unlock()

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.shutdownOne(ctx, name, services[name]); err != nil {
			r.logger.Error("Service teardown failed", "service", name, "error", err)
		}
	}
}

func (r *ServiceRegistry) shutdownOne(ctx context.Context, name string, service any) error {
	var teardown func() error
	switch s := service.(type) {
	case Stoppable:
		teardown = func() error { return s.Stop(ctx) }
	case Closable:
		teardown = s.Close
	default:
		r.logger.Warn("Service has no Stop or Close capability, skipping", "service", name)
		return nil
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("teardown panicked: %v", rec)
			}
		}()
		done <- teardown()
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		r.logger.Debug("Service stopped", "service", name)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("teardown timed out: %w", ctx.Err())
	}
}
