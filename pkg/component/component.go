// Package component implements the base Component type: the unit that
// owns a set of named properties, exposes them under a cancelable
// reader/writer lock, and emits PropertyChanged events on change.
//
// This generalizes the exposed-thing value-store-plus-hook pattern
// (cached values behind a mutex, an EmitEventHook invoked by the
// protocol binding) to the spec's property/metadata/event model: the
// value store becomes a map of valuetype.Value guarded by an
// asynclock.RWLock instead of a plain sync.RWMutex, and the single
// EmitPropertiesChangeHook becomes a per-change eventmodel.Event
// passed to an EmitEventHook, so callers can wire it to whatever
// publishes the event (an event bus, a test recorder, nothing at all).
package component

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/asynclock"
	"github.com/gardenfabric/core/pkg/eventmodel"
	"github.com/gardenfabric/core/pkg/ferrors"
	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/valuetype"
)

// StatePropertyName is the reserved, read-only property name under
// which lifecycle transitions publish the component's current State.
const StatePropertyName = "State"

// Component is the base building block of the fabric: an identified,
// named unit holding properties and their metadata, safe for
// concurrent use.
type Component struct {
	id           uuid.UUID
	deviceID     uuid.UUID
	name         string
	assemblyType string

	state int32 // State, accessed atomically

	lock       *asynclock.RWLock
	properties map[string]valuetype.Value
	metadata   map[string]propmeta.Metadata

	// EmitEventHook is invoked for every event this component produces.
	// Left nil, events are silently dropped (useful for components
	// under construction, or tests exercising property storage alone).
	EmitEventHook func(ctx context.Context, event eventmodel.Event) error
}

// New constructs a Component in StateCreated with no properties set.
func New(id, deviceID uuid.UUID, name, assemblyType string) *Component {
	return &Component{
		id:           id,
		deviceID:     deviceID,
		name:         name,
		assemblyType: assemblyType,
		state:        int32(StateCreated),
		lock:         asynclock.New(),
		properties:   make(map[string]valuetype.Value),
		metadata:     make(map[string]propmeta.Metadata),
	}
}

func (c *Component) ID() uuid.UUID        { return c.id }
func (c *Component) DeviceID() uuid.UUID  { return c.deviceID }
func (c *Component) Name() string         { return c.name }
func (c *Component) AssemblyType() string { return c.assemblyType }

// TargetID implements eventmodel.Handler, identifying this component
// as a routing target by its own id.
func (c *Component) TargetID() uuid.UUID { return c.id }

// State returns the component's current lifecycle state.
func (c *Component) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// SetState forces the lifecycle state without publishing a State
// property change, for callers (e.g. Dispose) that bypass the normal
// transition event.
func (c *Component) SetState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// TryChangeState atomically transitions from expected to next,
// publishing the new state as the read-only "State" property and
// emitting a PropertyChanged event. Reports false, nil if the current
// state did not match expected.
func (c *Component) TryChangeState(ctx context.Context, expected, next State, routing eventmodel.RoutingData) (bool, error) {
	if !atomic.CompareAndSwapInt32(&c.state, int32(expected), int32(next)) {
		return false, nil
	}
	md := propmeta.Metadata{IsReadOnly: true, IsVisible: true, DisplayName: StatePropertyName}
	err := c.setPropertyInternal(ctx, StatePropertyName, valuetype.FromString(next.String()), &md, routing, true)
	return err == nil, err
}

// GetProperty returns the current value of name and whether it has
// ever been set.
func (c *Component) GetProperty(ctx context.Context, name string) (valuetype.Value, bool, error) {
	release, err := c.lock.AcquireRead(ctx)
	if err != nil {
		return valuetype.Null(), false, err
	}
	defer release()
	v, found := c.properties[name]
	return v, found, nil
}

// GetMetadata returns the metadata recorded for name, if any property
// has ever been set under that name.
func (c *Component) GetMetadata(ctx context.Context, name string) (propmeta.Metadata, bool, error) {
	release, err := c.lock.AcquireRead(ctx)
	if err != nil {
		return propmeta.Metadata{}, false, err
	}
	defer release()
	md, found := c.metadata[name]
	return md.Clone(), found, nil
}

// Snapshot returns a value copy of all current properties.
func (c *Component) Snapshot(ctx context.Context) (map[string]valuetype.Value, error) {
	release, err := c.lock.AcquireRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	out := make(map[string]valuetype.Value, len(c.properties))
	for k, v := range c.properties {
		out[k] = v
	}
	return out, nil
}

// AllMetadata returns a value copy of every recorded metadata entry.
func (c *Component) AllMetadata(ctx context.Context) (map[string]propmeta.Metadata, error) {
	release, err := c.lock.AcquireRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	out := make(map[string]propmeta.Metadata, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v.Clone()
	}
	return out, nil
}

// SetProperty is the public setter: it rejects writes to a property
// previously marked read-only with ferrors.ErrValidation, and fails
// with ferrors.ErrDisposed once the component has been disposed.
// Internal lifecycle transitions use setPropertyInternal to bypass
// the read-only check.
func (c *Component) SetProperty(ctx context.Context, name string, newValue valuetype.Value, md *propmeta.Metadata, routing eventmodel.RoutingData) error {
	if c.State() == StateDisposed {
		return fmt.Errorf("component %s: %w", c.id, ferrors.ErrDisposed)
	}
	return c.setPropertyInternal(ctx, name, newValue, md, routing, false)
}

func (c *Component) setPropertyInternal(ctx context.Context, name string, newValue valuetype.Value, md *propmeta.Metadata, routing eventmodel.RoutingData, bypassReadOnly bool) error {
	release, err := c.lock.AcquireWrite(ctx)
	if err != nil {
		return err
	}

	if prior, found := c.metadata[name]; found && prior.IsReadOnly && !bypassReadOnly {
		release()
		return fmt.Errorf("component %s: %w: property %q is read-only", c.id, ferrors.ErrValidation, name)
	}

	oldValue, existed := c.properties[name]
	unchanged := existed && oldValue.Equal(newValue)
	c.properties[name] = newValue

	effectiveMD := c.metadata[name]
	if md != nil {
		effectiveMD = *md
	}
	effectiveMD.LastModified = time.Now()
	c.metadata[name] = effectiveMD

	hook := c.EmitEventHook
	deviceID := c.deviceID
	compID := c.id
	release()

	if unchanged || hook == nil {
		return nil
	}

	event := eventmodel.NewPropertyChanged(compID, deviceID, name, newValue.Kind, oldValue, newValue, effectiveMD, routing)
	return hook(ctx, event)
}

// LoadProperties replaces both the property and metadata maps
// atomically, without emitting change events, per the spec's
// loadProperties contract (used to hydrate a component from storage).
func (c *Component) LoadProperties(ctx context.Context, properties map[string]valuetype.Value, metadata map[string]propmeta.Metadata) error {
	release, err := c.lock.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()

	newProps := make(map[string]valuetype.Value, len(properties))
	for k, v := range properties {
		newProps[k] = v
	}
	newMD := make(map[string]propmeta.Metadata, len(metadata))
	for k, v := range metadata {
		newMD[k] = v
	}
	c.properties = newProps
	c.metadata = newMD
	return nil
}

// EmitEvent publishes an arbitrary event via EmitEventHook, returning
// ferrors.ErrHandlerFailure wrapped with a clearer message when no hook
// is installed, mirroring the exposed-thing "hook not installed" case.
func (c *Component) EmitEvent(ctx context.Context, event eventmodel.Event) error {
	if c.EmitEventHook == nil {
		return fmt.Errorf("component %s: %w: no EmitEventHook installed", c.id, ferrors.ErrHandlerFailure)
	}
	return c.EmitEventHook(ctx, event)
}

// HandleEvent implements eventmodel.Handler with a no-op default;
// Device and concrete components override this to react to commands
// and property change notifications.
func (c *Component) HandleEvent(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
	return nil
}
