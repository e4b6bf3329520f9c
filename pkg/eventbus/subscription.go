package eventbus

import (
	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/eventmodel"
)

// Options filter which events a subscription is eligible to receive.
// The bus applies them after the event's explicit target ids, in a
// fixed order: event types, source ids, connected sources, Filter.
type Options struct {
	EventTypes             []eventmodel.Type
	SourceIDs              []uuid.UUID
	IncludeConnectedSources bool
	Synchronous            bool
	Filter                 func(event eventmodel.Event) bool
}

func (o Options) matchesEventType(t eventmodel.Type) bool {
	if len(o.EventTypes) == 0 {
		return true
	}
	for _, et := range o.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

func (o Options) matchesSourceID(id uuid.UUID) bool {
	if len(o.SourceIDs) == 0 {
		return true
	}
	for _, s := range o.SourceIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Subscription pairs a handler with its filter options under a stable
// id the caller can later Unsubscribe with.
type Subscription struct {
	ID      uuid.UUID
	Handler eventmodel.Handler
	Options Options
}
