// Package eventmodel defines event identity, priority, routing data
// and the handler capability set shared by the component model, the
// event bus, the queue processor and the persistence service.
//
// The source this is grounded on carries two handler interfaces
// (IHydroGardenEventHandler and IPropertyChangedEventHandler); this
// implementation collapses them into the single Handler
// capability set {HandleEvent, TargetID}, with event variants
// distinguished by Event.Type and callers branching on it, per
// spec.md's design notes.
package eventmodel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/valuetype"
)

// Type identifies the shape of an Event's Payload.
type Type int

const (
	TypePropertyChanged Type = iota
	TypeCommand
	TypeLifecycle
	TypeError
	TypeCustom
)

func (t Type) String() string {
	switch t {
	case TypePropertyChanged:
		return "PropertyChanged"
	case TypeCommand:
		return "Command"
	case TypeLifecycle:
		return "Lifecycle"
	case TypeError:
		return "Error"
	case TypeCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// Priority orders subscriptions and queue bands during dispatch.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 50
	PriorityHigh     Priority = 100
	PriorityCritical Priority = 200
)

// RoutingData carries per-event hints that shape delivery.
type RoutingData struct {
	// TargetIDs restricts delivery to handlers with a matching TargetID.
	// Empty means no restriction from this rule.
	TargetIDs []uuid.UUID
	// Persist requests dead-lettering on total delivery failure.
	Persist bool
	// Priority orders handler dispatch; zero value on a zero RoutingData
	// resolves to PriorityNormal, see NormalizedPriority.
	Priority Priority
	// RequiresAcknowledgment signals consumers should explicitly ack.
	RequiresAcknowledgment bool
	// Timeout bounds the aggregate wait for asynchronous handlers.
	// Zero means no timeout.
	Timeout time.Duration
}

// HasTarget reports whether targetID is eligible under TargetIDs. An
// empty TargetIDs imposes no restriction (returns true for any id).
func (r RoutingData) HasTarget(targetID uuid.UUID) bool {
	if len(r.TargetIDs) == 0 {
		return true
	}
	for _, t := range r.TargetIDs {
		if t == targetID {
			return true
		}
	}
	return false
}

// PropertyChangedPayload is the payload for TypePropertyChanged events.
type PropertyChangedPayload struct {
	PropertyName string
	PropertyType valuetype.Kind
	OldValue     valuetype.Value
	NewValue     valuetype.Value
	Metadata     propmeta.Metadata
}

// CommandPayload is the payload for TypeCommand events.
type CommandPayload struct {
	CommandName string
	Parameters  map[string]valuetype.Value
}

// Event is an immutable record published by a component and routed by
// the bus.
type Event struct {
	EventID     uuid.UUID
	SourceID    uuid.UUID
	DeviceID    uuid.UUID
	Type        Type
	Timestamp   time.Time
	Payload     interface{}
	RoutingData RoutingData
}

// NormalizedPriority returns the event's routing priority, defaulting
// to PriorityNormal when the routing data carries the Priority zero
// value (which for this enum coincides with PriorityLow); callers that
// never explicitly chose Low should leave RoutingData.Priority unset
// and treat it as Normal via this accessor.
func (e Event) NormalizedPriority() Priority {
	if e.RoutingData.Priority == 0 {
		return PriorityNormal
	}
	return e.RoutingData.Priority
}

// NewPropertyChanged constructs a fresh PropertyChanged event.
func NewPropertyChanged(sourceID, deviceID uuid.UUID, propertyName string, propertyType valuetype.Kind, oldValue, newValue valuetype.Value, md propmeta.Metadata, routing RoutingData) Event {
	return Event{
		EventID:   uuid.New(),
		SourceID:  sourceID,
		DeviceID:  deviceID,
		Type:      TypePropertyChanged,
		Timestamp: time.Now(),
		Payload: PropertyChangedPayload{
			PropertyName: propertyName,
			PropertyType: propertyType,
			OldValue:     oldValue,
			NewValue:     newValue,
			Metadata:     md,
		},
		RoutingData: routing,
	}
}

// NewCommand constructs a fresh Command event.
func NewCommand(sourceID, deviceID uuid.UUID, commandName string, params map[string]valuetype.Value, routing RoutingData) Event {
	return Event{
		EventID:   uuid.New(),
		SourceID:  sourceID,
		DeviceID:  deviceID,
		Type:      TypeCommand,
		Timestamp: time.Now(),
		Payload: CommandPayload{
			CommandName: commandName,
			Parameters:  params,
		},
		RoutingData: routing,
	}
}

// Handler is the capability set a subscriber or registered component
// handler must implement: handle the event, and optionally identify
// itself as a routing target. Handlers without a stable identity
// should return uuid.Nil from TargetID, which RoutingData.HasTarget
// treats as "zero id" per spec section 4.4, rule 1.
type Handler interface {
	HandleEvent(ctx context.Context, sender uuid.UUID, event Event) error
	TargetID() uuid.UUID
}

// HandlerFunc adapts a plain function to Handler for callers with no
// target identity of their own (e.g. ad-hoc test subscribers).
type HandlerFunc func(ctx context.Context, sender uuid.UUID, event Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, sender uuid.UUID, event Event) error {
	return f(ctx, sender, event)
}

func (f HandlerFunc) TargetID() uuid.UUID { return uuid.Nil }
