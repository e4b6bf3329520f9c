package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/eventmodel"
	"github.com/gardenfabric/core/pkg/ferrors"
	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/valuetype"
)

// Reserved, read-only property names seeded by Initialize.
const (
	PropertyID           = "Id"
	PropertyName         = "Name"
	PropertyAssemblyType = "AssemblyType"
	PropertyDeviceType   = "DeviceType"
)

// Device is a Component that additionally owns child components (its
// sensors, actuators, and sub-assemblies) and a lifecycle the fabric
// drives explicitly: Initialize, Execute, Stop, Dispose. A Device's
// DeviceID equals its own ID, so property change events it emits
// directly are routed as their own owning device.
//
// This generalizes ConsumedThing/ExposedThing's Stop()-plus-handler
// shape into an explicit lifecycle state machine, since the fabric
// must track whether a device is safe to route commands to, not just
// whether its transport is connected.
type Device struct {
	Component

	childrenMu sync.RWMutex
	children   map[uuid.UUID]*Component

	deviceType string

	onInitialize func(ctx context.Context, d *Device) error
	onExecute    func(ctx context.Context, d *Device) error
	onDispose    func(ctx context.Context, d *Device) error

	cancelExecute context.CancelFunc
	executeDone   chan struct{}
}

// NewDevice constructs a Device in StateCreated with no children.
func NewDevice(id uuid.UUID, name, assemblyType, deviceType string) *Device {
	return &Device{
		Component:  *New(id, id, name, assemblyType),
		children:   make(map[uuid.UUID]*Component),
		deviceType: deviceType,
	}
}

// SetLifecycleHooks installs the optional callbacks invoked by
// Initialize/Execute/Dispose. onExecute, if set, is run in its own
// goroutine by Execute and is expected to respect ctx cancellation.
// Any of them may be nil.
func (d *Device) SetLifecycleHooks(onInitialize, onExecute, onDispose func(ctx context.Context, d *Device) error) {
	d.onInitialize = onInitialize
	d.onExecute = onExecute
	d.onDispose = onDispose
}

// AddChild registers a child component owned by this device. The
// child's DeviceID should already equal this device's ID.
func (d *Device) AddChild(c *Component) {
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	d.children[c.ID()] = c
}

// RemoveChild unregisters a previously added child component.
func (d *Device) RemoveChild(id uuid.UUID) {
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	delete(d.children, id)
}

// Child returns the child component with the given id, if registered.
func (d *Device) Child(id uuid.UUID) (*Component, bool) {
	d.childrenMu.RLock()
	defer d.childrenMu.RUnlock()
	c, found := d.children[id]
	return c, found
}

// Children returns a snapshot slice of all registered child components.
func (d *Device) Children() []*Component {
	d.childrenMu.RLock()
	defer d.childrenMu.RUnlock()
	out := make([]*Component, 0, len(d.children))
	for _, c := range d.children {
		out = append(out, c)
	}
	return out
}

// Initialize transitions Created -> Initializing -> Ready, seeding the
// device's read-only identity properties {Id, Name, AssemblyType,
// DeviceType, State} and running onInitialize if installed. A failed
// onInitialize transitions to Error instead of Ready.
func (d *Device) Initialize(ctx context.Context) error {
	ok, err := d.TryChangeState(ctx, StateCreated, StateInitializing, eventmodel.RoutingData{})
	if !ok {
		if err != nil {
			return err
		}
		return fmt.Errorf("device %s: %w: Initialize requires state Created, have %s", d.ID(), ferrors.ErrValidation, d.State())
	}

	readOnly := func(name string, v valuetype.Value) error {
		md := propmeta.Metadata{IsReadOnly: true, IsVisible: true, DisplayName: name}
		return d.setPropertyInternal(ctx, name, v, &md, eventmodel.RoutingData{}, true)
	}
	if err := readOnly(PropertyID, valuetype.FromID(d.ID())); err != nil {
		return err
	}
	if err := readOnly(PropertyName, valuetype.FromString(d.Name())); err != nil {
		return err
	}
	if err := readOnly(PropertyAssemblyType, valuetype.FromString(d.AssemblyType())); err != nil {
		return err
	}
	if err := readOnly(PropertyDeviceType, valuetype.FromString(d.deviceType)); err != nil {
		return err
	}

	if d.onInitialize != nil {
		if err := d.onInitialize(ctx, d); err != nil {
			_, _ = d.TryChangeState(ctx, StateInitializing, StateError, eventmodel.RoutingData{})
			return err
		}
	}
	_, err = d.TryChangeState(ctx, StateInitializing, StateReady, eventmodel.RoutingData{})
	return err
}

// Execute transitions Ready -> Running and, if onExecute is installed,
// runs it in its own goroutine until the returned context is canceled
// by Stop. Execute returns immediately; call Stop to bring the device
// back to Ready.
func (d *Device) Execute(ctx context.Context) error {
	ok, err := d.TryChangeState(ctx, StateReady, StateRunning, eventmodel.RoutingData{})
	if !ok {
		if err != nil {
			return err
		}
		return fmt.Errorf("device %s: %w: Execute requires state Ready, have %s", d.ID(), ferrors.ErrValidation, d.State())
	}
	if d.onExecute == nil {
		return nil
	}
	execCtx, cancel := context.WithCancel(ctx)
	d.cancelExecute = cancel
	d.executeDone = make(chan struct{})
	go func() {
		defer close(d.executeDone)
		_ = d.onExecute(execCtx, d)
	}()
	return nil
}

// Stop transitions Running -> Stopping, cancels any running Execute
// goroutine, waits for it to return, then transitions to Ready.
func (d *Device) Stop(ctx context.Context) error {
	ok, err := d.TryChangeState(ctx, StateRunning, StateStopping, eventmodel.RoutingData{})
	if !ok {
		return err
	}
	if d.cancelExecute != nil {
		d.cancelExecute()
		<-d.executeDone
		d.cancelExecute = nil
	}
	_, err = d.TryChangeState(ctx, StateStopping, StateReady, eventmodel.RoutingData{})
	return err
}

// Dispose invokes onDispose, then transitions to StateDisposed
// regardless of its outcome, detaching all children. Further
// SetProperty and HandleEvent calls return ferrors.ErrDisposed; reads
// still succeed. Dispose then dispose is a no-op.
func (d *Device) Dispose(ctx context.Context) error {
	if d.State() == StateDisposed {
		return nil
	}
	var err error
	if d.onDispose != nil {
		err = d.onDispose(ctx, d)
	}
	if d.cancelExecute != nil {
		d.cancelExecute()
		<-d.executeDone
		d.cancelExecute = nil
	}
	d.SetState(StateDisposed)
	d.childrenMu.Lock()
	d.children = make(map[uuid.UUID]*Component)
	d.childrenMu.Unlock()
	return err
}

// HandleEvent is the base Device's event handler. It has no built-in
// command set: it returns ferrors.ErrDisposed once the device has been
// disposed, and otherwise accepts every event as a no-op, returning nil.
func (d *Device) HandleEvent(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
	if d.State() == StateDisposed {
		return fmt.Errorf("device %s: %w", d.ID(), ferrors.ErrDisposed)
	}
	return nil
}
