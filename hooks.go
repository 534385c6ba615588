package scaffold

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// HookPhase identifies a named point in the application lifecycle where
// registered callbacks run in order.
type HookPhase string

// Lifecycle phases, in the order the bootstrap emits them. SECURITY is the
// only request-scoped phase; it fires once per gated request.
const (
	PhaseInitialize       HookPhase = "INITIALIZE"
	PhaseStartup          HookPhase = "STARTUP"
	PhasePreInit          HookPhase = "PRE_INIT"
	PhaseCustomMiddleware HookPhase = "CUSTOM_MIDDLEWARE"
	PhasePostInit         HookPhase = "POST_INIT"
	PhaseSecurity         HookPhase = "SECURITY"
	PhaseShutdown         HookPhase = "SHUTDOWN"
)

// HookPhases returns the fixed, ordered set of lifecycle phases.
func HookPhases() []HookPhase {
	return []HookPhase{
		PhaseInitialize,
		PhaseStartup,
		PhasePreInit,
		PhaseCustomMiddleware,
		PhasePostInit,
		PhaseSecurity,
		PhaseShutdown,
	}
}

// Valid reports whether p is one of the fixed lifecycle phases.
func (p HookPhase) Valid() bool {
	return slices.Contains(HookPhases(), p)
}

// EventType returns the CloudEvent type emitted when this phase fires.
func (p HookPhase) EventType() string {
	return "com.scaffold.hook." + strings.ToLower(string(p))
}

// HookContext is the ambient bundle passed to every hook invocation.
// It is constructed once per lifecycle emission, or once per request for the
// SECURITY phase, where Request carries the in-flight request.
type HookContext struct {
	Config   *Config
	Logger   Logger
	Hooks    *HookManager
	Services *ServiceRegistry
	Request  *http.Request
}

// HookFunc is a lifecycle hook callback. Returning an error aborts the
// surrounding phase for every phase except CUSTOM_MIDDLEWARE.
type HookFunc func(ctx context.Context, hctx *HookContext) error

type observerEntry struct {
	observer     Observer
	eventTypes   []string
	registeredAt time.Time
}

// HookManager is an ordered multi-subscriber dispatcher for lifecycle phases.
// Subscribers run strictly sequentially in registration order; emission is
// fail-fast except for the best-effort CUSTOM_MIDDLEWARE phase, whose errors
// are logged and swallowed so one bad custom hook can't abort startup.
//
// Every emission is additionally mirrored to registered observers as a
// CloudEvent; observer failures are logged and never affect the phase outcome.
type HookManager struct {
	mu          sync.RWMutex
	subscribers map[HookPhase][]HookFunc
	observers   []observerEntry
	logger      Logger
}

// NewHookManager creates a hook manager with no subscribers.
func NewHookManager(logger Logger) *HookManager {
	return &HookManager{
		subscribers: make(map[HookPhase][]HookFunc),
		logger:      logger,
	}
}

// On appends fn to the subscriber list for phase. Registration order is
// significant and preserved at emission time.
func (m *HookManager) On(phase HookPhase, fn HookFunc) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownHookPhase, phase)
	}
	if fn == nil {
		return fmt.Errorf("%w: phase %s", ErrNilHookFunc, phase)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[phase] = append(m.subscribers[phase], fn)
	return nil
}

// SubscriberCount returns the number of callbacks registered for phase.
func (m *HookManager) SubscriberCount(phase HookPhase) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[phase])
}

// Emit runs every subscriber of phase strictly sequentially in registration
// order. A subscriber error is logged with the phase name and returned to the
// caller, aborting the remaining subscribers. The exception is
// CUSTOM_MIDDLEWARE, where errors are logged and the remaining subscribers
// still run.
func (m *HookManager) Emit(ctx context.Context, phase HookPhase, hctx *HookContext) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownHookPhase, phase)
	}

	m.mu.RLock()
	fns := slices.Clone(m.subscribers[phase])
	m.mu.RUnlock()

	m.notifyObservers(ctx, NewCloudEvent(phase.EventType(), "scaffold-hooks", map[string]interface{}{
		"phase":       string(phase),
		"subscribers": len(fns),
	}, nil))

	for _, fn := range fns {
		if err := fn(ctx, hctx); err != nil {
			if phase == PhaseCustomMiddleware {
				m.logger.Error("Custom middleware hook failed, continuing", "phase", phase, "error", err)
				continue
			}
			m.logger.Error("Hook subscriber failed", "phase", phase, "error", err)
			return fmt.Errorf("hook phase %s: %w", phase, err)
		}
	}
	return nil
}

// RegisterObserver adds an observer to receive hook CloudEvents.
// Observers can optionally filter by event type; an empty eventTypes list
// subscribes to all phases.
func (m *HookManager) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrNilObserver
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, observerEntry{
		observer:     observer,
		eventTypes:   slices.Clone(eventTypes),
		registeredAt: time.Now(),
	})
	return nil
}

// UnregisterObserver removes an observer by ID. It is idempotent.
func (m *HookManager) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrNilObserver
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = slices.DeleteFunc(m.observers, func(e observerEntry) bool {
		return e.observer.ObserverID() == observer.ObserverID()
	})
	return nil
}

// Observers returns information about currently registered observers.
func (m *HookManager) Observers() []ObserverInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ObserverInfo, 0, len(m.observers))
	for _, e := range m.observers {
		infos = append(infos, ObserverInfo{
			ID:           e.observer.ObserverID(),
			EventTypes:   slices.Clone(e.eventTypes),
			RegisteredAt: e.registeredAt,
		})
	}
	return infos
}

// notifyObservers mirrors a hook emission to interested observers.
// Observer errors are logged at debug and never propagate.
func (m *HookManager) notifyObservers(ctx context.Context, event CloudEvent) {
	m.mu.RLock()
	entries := slices.Clone(m.observers)
	m.mu.RUnlock()

	for _, e := range entries {
		if len(e.eventTypes) > 0 && !slices.Contains(e.eventTypes, event.Type()) {
			continue
		}
		if err := e.observer.OnEvent(ctx, event); err != nil {
			m.logger.Debug("Hook observer failed", "observer", e.observer.ObserverID(), "eventType", event.Type(), "error", err)
		}
	}
}
