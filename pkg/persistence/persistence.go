// Package persistence implements the batching, transactional
// write-back cache that sits between components and a pluggable
// key-value store: it is the bootstrap registrar that wires a new
// component's event handler, and it is itself an eventmodel.Handler
// that coalesces PropertyChanged events per device and commits them
// in batches.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/component"
	"github.com/gardenfabric/core/pkg/eventmodel"
	"github.com/gardenfabric/core/pkg/ferrors"
	"github.com/gardenfabric/core/pkg/lru"
	"github.com/gardenfabric/core/pkg/store"
	"github.com/gardenfabric/core/pkg/valuetype"
)

// DefaultBatchInterval matches the spec's default flush cadence.
const DefaultBatchInterval = 5 * time.Second

// idleFlushFraction sets how long the batch loop waits for another
// pending event before flushing early on idleness, as a fraction of
// the configured batch interval.
const idleFlushFraction = 4

const minIdleFlushWindow = 10 * time.Millisecond

type pendingEvent struct {
	deviceID     uuid.UUID
	propertyName string
	newValue     valuetype.Value
}

// Service is the persistence event handler. Construct with New, call
// Start to launch its batch loop, and Shutdown to drain it.
type Service struct {
	st    store.Store
	cache *lru.Cache

	batchInterval time.Duration
	idleWindow    time.Duration
	pending       chan pendingEvent

	coalesceMu sync.Mutex
	coalesced  map[uuid.UUID]map[string]valuetype.Value

	dirtyMu sync.Mutex
	dirty   map[uuid.UUID]struct{}

	flushMu sync.Mutex // serializes flushes against one another

	cancel   context.CancelFunc
	loopDone chan struct{}

	// OnFlushError is invoked (if set) whenever a batch flush fails, so
	// callers can route the failure to an error monitor without this
	// package depending on one.
	OnFlushError func(err error)
}

// New constructs a Service backed by st, with an LRU hot-set of the
// given capacity and the given batch interval (DefaultBatchInterval if
// <= 0).
func New(st store.Store, cacheCapacity int, batchInterval time.Duration) *Service {
	if batchInterval <= 0 {
		batchInterval = DefaultBatchInterval
	}
	return &Service{
		st:            st,
		cache:         lru.NewSmart(cacheCapacity, 0, 0),
		batchInterval: batchInterval,
		idleWindow:    idleWindowFor(batchInterval),
		pending:       make(chan pendingEvent, 4096),
		coalesced:     make(map[uuid.UUID]map[string]valuetype.Value),
		dirty:         make(map[uuid.UUID]struct{}),
		loopDone:      make(chan struct{}),
	}
}

func idleWindowFor(batchInterval time.Duration) time.Duration {
	w := batchInterval / idleFlushFraction
	if w < minIdleFlushWindow {
		w = minIdleFlushWindow
	}
	return w
}

// Start launches the batch loop. Call Shutdown to stop it.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.batchLoop(ctx)
}

// TargetID implements eventmodel.Handler; the persistence service has
// no routing identity of its own.
func (s *Service) TargetID() uuid.UUID { return uuid.Nil }

// AddOrUpdate registers the service as c's event handler, then either
// hydrates c from a prior snapshot in the store, or, if none exists,
// captures c's current properties and persists them immediately.
func (s *Service) AddOrUpdate(ctx context.Context, c *component.Component) error {
	c.EmitEventHook = func(ctx context.Context, event eventmodel.Event) error {
		return s.HandleEvent(ctx, event.SourceID, event)
	}

	props, err := s.st.Load(ctx, c.DeviceID())
	if err != nil {
		return err
	}
	if len(props) > 0 {
		metadata, err := s.st.LoadMetadata(ctx, c.DeviceID())
		if err != nil {
			return err
		}
		if err := c.LoadProperties(ctx, props, metadata); err != nil {
			return err
		}
		s.cache.AddOrUpdate(c.DeviceID().String(), cloneValues(props))
		return nil
	}

	snapshot, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	allMetadata, err := c.AllMetadata(ctx)
	if err != nil {
		return err
	}
	s.cache.AddOrUpdate(c.DeviceID().String(), cloneValues(snapshot))

	tx, err := s.st.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	if err := tx.SaveWithMetadata(ctx, c.DeviceID(), snapshot, allMetadata); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// HandleEvent implements eventmodel.Handler. Non-PropertyChanged
// events are ignored. PropertyChanged events update the LRU
// immediately (so GetProperty reflects them without waiting for a
// flush) and are queued for the next batch.
func (s *Service) HandleEvent(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
	if event.Type != eventmodel.TypePropertyChanged {
		return nil
	}
	payload, ok := event.Payload.(eventmodel.PropertyChangedPayload)
	if !ok {
		return nil
	}

	s.updateCache(event.DeviceID, payload.PropertyName, payload.NewValue)

	select {
	case s.pending <- pendingEvent{deviceID: event.DeviceID, propertyName: payload.PropertyName, newValue: payload.NewValue}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) updateCache(deviceID uuid.UUID, propertyName string, value valuetype.Value) {
	key := deviceID.String()
	raw, found := s.cache.TryGet(key)
	var snapshot map[string]valuetype.Value
	if found {
		snapshot = raw.(map[string]valuetype.Value)
	} else {
		snapshot = make(map[string]valuetype.Value)
	}
	snapshot[propertyName] = value
	s.cache.AddOrUpdate(key, snapshot)
}

// GetProperty reads a single property from the LRU only; it never
// touches the backing store.
func (s *Service) GetProperty(deviceID uuid.UUID, propertyName string) (valuetype.Value, bool) {
	raw, found := s.cache.TryGet(deviceID.String())
	if !found {
		return valuetype.Null(), false
	}
	v, found := raw.(map[string]valuetype.Value)[propertyName]
	return v, found
}

func (s *Service) coalesce(ev pendingEvent) {
	s.coalesceMu.Lock()
	defer s.coalesceMu.Unlock()
	m, found := s.coalesced[ev.deviceID]
	if !found {
		m = make(map[string]valuetype.Value)
		s.coalesced[ev.deviceID] = m
	}
	m[ev.propertyName] = ev.newValue
}

func (s *Service) takeCoalesced() map[uuid.UUID]map[string]valuetype.Value {
	s.coalesceMu.Lock()
	defer s.coalesceMu.Unlock()
	batch := s.coalesced
	s.coalesced = make(map[uuid.UUID]map[string]valuetype.Value)
	return batch
}

func (s *Service) markDirty(deviceID uuid.UUID) {
	s.dirtyMu.Lock()
	s.dirty[deviceID] = struct{}{}
	s.dirtyMu.Unlock()
}

// ProcessPendingEvents drains any buffered events and flushes
// immediately; used for the final flush on shutdown and by tests that
// want a batch's outcome without waiting for the batch interval to
// elapse.
func (s *Service) ProcessPendingEvents(ctx context.Context) error {
	s.drainAvailable()
	return s.flush(ctx)
}

func (s *Service) drainAvailable() {
	for {
		select {
		case ev := <-s.pending:
			s.coalesce(ev)
		default:
			return
		}
	}
}

// batchLoop flushes on whichever fires first: the batch interval
// ticker (an upper bound on how stale a coalesced change can get) or
// the idle timer, which is reset on every incoming event and fires
// once the channel has gone quiet for idleWindow. A bursty producer
// never waits the full batch interval once it stops sending.
func (s *Service) batchLoop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.batchInterval)
	defer ticker.Stop()

	idle := time.NewTimer(s.idleWindow)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainAvailable()
			if err := s.flush(context.Background()); err != nil && s.OnFlushError != nil {
				s.OnFlushError(err)
			}
			return
		case ev := <-s.pending:
			s.coalesce(ev)
			s.drainAvailable()
			resetTimer(idle, s.idleWindow)
		case <-ticker.C:
			if err := s.flush(ctx); err != nil && s.OnFlushError != nil {
				s.OnFlushError(err)
			}
			resetTimer(idle, s.idleWindow)
		case <-idle.C:
			if err := s.flush(ctx); err != nil && s.OnFlushError != nil {
				s.OnFlushError(err)
			}
			idle.Reset(s.idleWindow)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// flush is guarded by flushMu so that at most one flush runs at a
// time (the transaction lock in spec terms). Devices whose write fails
// are marked dirty and folded back into the next batch's coalesced
// map instead of being dropped (batch rollback choice: the LRU itself
// is never rolled back, only re-enqueued for retry).
func (s *Service) flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := s.takeCoalesced()

	s.dirtyMu.Lock()
	for deviceID := range s.dirty {
		if _, found := batch[deviceID]; found {
			continue
		}
		if raw, found := s.cache.TryGet(deviceID.String()); found {
			snapshot := raw.(map[string]valuetype.Value)
			retry := make(map[string]valuetype.Value, len(snapshot))
			for k, v := range snapshot {
				retry[k] = v
			}
			batch[deviceID] = retry
		}
	}
	s.dirtyMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	tx, err := s.st.BeginTransaction(ctx)
	if err != nil {
		for deviceID := range batch {
			s.markDirty(deviceID)
		}
		return fmt.Errorf("persistence: begin transaction: %w", err)
	}

	for deviceID, changed := range batch {
		full := s.mergeIntoCache(deviceID, changed)
		if err := tx.Save(ctx, deviceID, full); err != nil {
			_ = tx.Rollback(ctx)
			for d := range batch {
				s.markDirty(d)
			}
			return fmt.Errorf("persistence: save %s: %w", deviceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		for deviceID := range batch {
			s.markDirty(deviceID)
		}
		return fmt.Errorf("persistence: commit: %w: %v", ferrors.ErrTransactionConflict, err)
	}

	s.dirtyMu.Lock()
	for deviceID := range batch {
		delete(s.dirty, deviceID)
	}
	s.dirtyMu.Unlock()
	return nil
}

func (s *Service) mergeIntoCache(deviceID uuid.UUID, changed map[string]valuetype.Value) map[string]valuetype.Value {
	key := deviceID.String()
	raw, found := s.cache.TryGet(key)
	var full map[string]valuetype.Value
	if found {
		full = raw.(map[string]valuetype.Value)
	} else {
		full = make(map[string]valuetype.Value)
	}
	for k, v := range changed {
		full[k] = v
	}
	s.cache.AddOrUpdate(key, full)
	return cloneValues(full)
}

func cloneValues(m map[string]valuetype.Value) map[string]valuetype.Value {
	out := make(map[string]valuetype.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Shutdown cancels the batch loop, waits up to 5s for it to exit (it
// performs one final flush on its way out), and returns.
func (s *Service) Shutdown() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	select {
	case <-s.loopDone:
	case <-time.After(5 * time.Second):
	}
}
