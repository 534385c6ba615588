// Package scaffold provides Observer pattern plumbing for lifecycle events.
// Events use the CloudEvents specification for standardized format and better
// interoperability with external systems.
package scaffold

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience.
type CloudEvent = cloudevents.Event

// Observer defines the interface for objects that want to be notified of
// lifecycle events. Observers register with the HookManager and receive a
// CloudEvent for every hook phase emission they subscribed to.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is interested in.
	// Observers should handle events quickly to avoid blocking other observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	// ID is the unique identifier of the observer.
	ID string `json:"id"`

	// EventTypes are the event types this observer is subscribed to.
	// Empty slice means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered.
	RegisteredAt time.Time `json:"registeredAt"`
}

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that delegates to the provided function.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

func (o *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	if o.handler != nil {
		return o.handler(ctx, event)
	}
	return nil
}

func (o *FunctionalObserver) ObserverID() string {
	return o.id
}

// NewCloudEvent creates a new CloudEvent with the specified parameters.
func NewCloudEvent(eventType, source string, data interface{}, metadata map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	for key, value := range metadata {
		event.SetExtension(key, value)
	}

	return event
}

// generateEventID generates a unique identifier for CloudEvents using UUIDv7.
// UUIDv7 includes timestamp information which provides time-ordered uniqueness.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails for any reason
		id = uuid.New()
	}
	return id.String()
}
