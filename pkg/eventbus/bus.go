// Package eventbus implements the fabric's publish/subscribe core: a
// subscription registry, rule-based routing (including topology-based
// connected-source fan-out), priority-ordered synchronous/asynchronous
// dispatch, publish timeouts, and dead-lettering of events that every
// eligible handler failed or that timed out entirely.
package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/eventmodel"
	"github.com/gardenfabric/core/pkg/ferrors"
	"github.com/gardenfabric/core/pkg/queue"
)

// TopologyLookup is the capability the bus needs from the topology
// service to resolve includeConnectedSources subscriptions, kept
// narrow so the bus does not depend on the full topology.Service API.
type TopologyLookup interface {
	TargetsOf(sourceID uuid.UUID) []uuid.UUID
}

// DeadLetterStore receives events that every eligible handler failed
// or that timed out entirely, when the event's RoutingData.Persist is
// set. Out of scope for this package's own implementation; see
// pkg/eventbus/mqttdeadletter for a concrete sink.
type DeadLetterStore interface {
	PersistFailed(ctx context.Context, event eventmodel.Event, errs []error) error
}

// Transformer rewrites an event before it is dispatched. The zero
// value bus uses the identity transformer.
type Transformer func(event eventmodel.Event) eventmodel.Event

// AsyncDispatcher schedules an item of asynchronous handler work onto a
// priority-banded worker pool; *queue.Processor satisfies it. When set
// on a Bus, asynchronous handler invocations are routed through it
// instead of spawned as bare goroutines, so a flood of low-priority
// work cannot starve higher-priority work scheduled concurrently by
// other publishers.
type AsyncDispatcher interface {
	Enqueue(item queue.Item)
}

// Bus owns the subscription table and the publish admission gate.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]Subscription

	topology TopologyLookup

	publishGate sync.Mutex

	DeadLetterStore DeadLetterStore
	Transformer     Transformer
	AsyncQueue      AsyncDispatcher
}

// New constructs an empty Bus. topology may be nil if no subscription
// ever sets IncludeConnectedSources.
func New(topology TopologyLookup) *Bus {
	return &Bus{
		subscriptions: make(map[uuid.UUID]Subscription),
		topology:      topology,
	}
}

// Subscribe registers handler under the given options and returns a
// fresh subscription id.
func (b *Bus) Subscribe(handler eventmodel.Handler, opts Options) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	b.subscriptions[id] = Subscription{ID: id, Handler: handler, Options: opts}
	return id
}

// Unsubscribe removes a subscription, reporting whether it existed.
func (b *Bus) Unsubscribe(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, found := b.subscriptions[id]
	delete(b.subscriptions, id)
	return found
}

// PublishResult reports the outcome of one Publish call. SuccessCount
// and the Errors slice may still be mutated after Publish returns if
// the publish timed out and a late asynchronous handler completes
// afterward; each accessor method reads the current values under the
// result's lock.
type PublishResult struct {
	EventID      uuid.UUID
	HandlerCount int

	mu           sync.Mutex
	successCount int
	failureCount int
	timedOut     bool
	errs         []error
}

// SuccessCount returns the current success count, safe to call even
// while late asynchronous handlers may still be completing.
func (r *PublishResult) SuccessCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successCount
}

// FailureCount returns the current failure count.
func (r *PublishResult) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failureCount
}

// TimedOut reports whether the aggregate async wait exceeded its
// routing timeout.
func (r *PublishResult) TimedOut() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timedOut
}

// Errors returns a copy of the accumulated handler errors.
func (r *PublishResult) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// IsComplete reports successCount == handlerCount && !timedOut.
func (r *PublishResult) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successCount == r.HandlerCount && !r.timedOut
}

func (r *PublishResult) recordSuccess() {
	r.mu.Lock()
	r.successCount++
	r.mu.Unlock()
}

func (r *PublishResult) recordFailure(err error) {
	r.mu.Lock()
	r.failureCount++
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *PublishResult) markTimedOut() {
	r.mu.Lock()
	r.timedOut = true
	r.mu.Unlock()
}

// eligible holds a subscription together with its resolved priority,
// computed once during selection.
type eligible struct {
	sub      Subscription
	priority eventmodel.Priority
}

// Publish routes event to every eligible subscription, invoking
// synchronous handlers inline (in priority-descending order, to
// completion before any asynchronous handler for this publish
// begins) and asynchronous handlers concurrently. If
// event.RoutingData.Timeout is set, the aggregate asynchronous wait is
// bounded by it; on timeout, PublishResult.TimedOut is set but
// in-flight handlers keep running and still update the result's
// counters when they finish.
func (b *Bus) Publish(ctx context.Context, sender uuid.UUID, event eventmodel.Event) (*PublishResult, error) {
	transform := b.Transformer
	if transform == nil {
		transform = func(e eventmodel.Event) eventmodel.Event { return e }
	}
	event = transform(event)

	b.publishGate.Lock()
	eligibleSubs := b.selectEligible(event)
	b.publishGate.Unlock()

	sort.SliceStable(eligibleSubs, func(i, j int) bool {
		return eligibleSubs[i].priority > eligibleSubs[j].priority
	})

	result := &PublishResult{EventID: event.EventID, HandlerCount: len(eligibleSubs)}

	var asyncSubs []eligible
	for _, e := range eligibleSubs {
		if ctx.Err() != nil {
			break
		}
		if e.sub.Options.Synchronous {
			invokeHandler(ctx, sender, event, e.sub.Handler, result)
		} else {
			asyncSubs = append(asyncSubs, e)
		}
	}

	if len(asyncSubs) > 0 {
		b.dispatchAsync(ctx, sender, event, asyncSubs, result)
	}

	if event.RoutingData.Persist && b.DeadLetterStore != nil {
		allFailed := result.HandlerCount > 0 && result.SuccessCount() == 0
		if allFailed || result.TimedOut() {
			if err := b.DeadLetterStore.PersistFailed(ctx, event, result.Errors()); err != nil {
				return result, fmt.Errorf("eventbus: dead-letter persist failed: %w", err)
			}
		}
	}

	return result, nil
}

func (b *Bus) selectEligible(event eventmodel.Event) []eligible {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []eligible
	for _, sub := range b.subscriptions {
		if !b.isEligible(sub, event) {
			continue
		}
		priority := event.NormalizedPriority()
		out = append(out, eligible{sub: sub, priority: priority})
	}
	return out
}

func (b *Bus) isEligible(sub Subscription, event eventmodel.Event) bool {
	targetID := sub.Handler.TargetID()

	// Rule 1: explicit targetIds take precedence over everything else.
	if !event.RoutingData.HasTarget(targetID) {
		return false
	}
	// Rule 2: event type filter.
	if !sub.Options.matchesEventType(event.Type) {
		return false
	}
	// Rule 3: source id filter.
	if !sub.Options.matchesSourceID(event.DeviceID) {
		return false
	}
	// Rule 4: connected-source fan-out is an additional filter, applied
	// after explicit targetIds, not a replacement for it.
	if sub.Options.IncludeConnectedSources {
		if b.topology == nil {
			return false
		}
		found := false
		for _, t := range b.topology.TargetsOf(event.DeviceID) {
			if t == targetID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// Rule 5: custom predicate.
	if sub.Options.Filter != nil && !sub.Options.Filter(event) {
		return false
	}
	return true
}

func invokeHandler(ctx context.Context, sender uuid.UUID, event eventmodel.Event, handler eventmodel.Handler, result *PublishResult) {
	if err := handler.HandleEvent(ctx, sender, event); err != nil {
		result.recordFailure(fmt.Errorf("%w: %v", ferrors.ErrHandlerFailure, err))
		return
	}
	result.recordSuccess()
}

func (b *Bus) dispatchAsync(ctx context.Context, sender uuid.UUID, event eventmodel.Event, subs []eligible, result *PublishResult) {
	if b.AsyncQueue != nil {
		b.dispatchAsyncViaQueue(ctx, sender, event, subs, result)
		return
	}

	var wg sync.WaitGroup
	for _, e := range subs {
		wg.Add(1)
		go func(h eventmodel.Handler) {
			defer wg.Done()
			invokeHandler(ctx, sender, event, h, result)
		}(e.sub.Handler)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timeout := event.RoutingData.Timeout
	if timeout <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(timeout):
		result.markTimedOut()
		// Late completions still update counters via invokeHandler's own
		// goroutines; we do not wait for them here.
	case <-ctx.Done():
		result.markTimedOut()
	}
}

// dispatchAsyncViaQueue schedules one queue item per subscriber behind
// a single shared ItemResult, so the eventual success count and error
// list fold directly into result without an extra fan-in goroutine per
// handler. A flood of asynchronous work on one priority band still
// drains through the processor's fixed worker pool rather than an
// unbounded goroutine per publish.
func (b *Bus) dispatchAsyncViaQueue(ctx context.Context, sender uuid.UUID, event eventmodel.Event, subs []eligible, result *PublishResult) {
	shared := queue.NewSharedItemResult(len(subs))
	for _, e := range subs {
		b.AsyncQueue.Enqueue(queue.Item{
			Event:   event,
			Handler: e.sub.Handler,
			Sender:  sender,
			Result:  shared,
		})
	}

	fold := func() {
		for i := 0; i < shared.SuccessCount(); i++ {
			result.recordSuccess()
		}
		for _, err := range shared.Errors() {
			result.recordFailure(fmt.Errorf("%w: %v", ferrors.ErrHandlerFailure, err))
		}
	}

	timeout := event.RoutingData.Timeout
	if timeout <= 0 {
		<-shared.Done()
		fold()
		return
	}

	select {
	case <-shared.Done():
		fold()
	case <-time.After(timeout):
		result.markTimedOut()
		// Late completions still land on shared once the queued items
		// finish; fold them in without blocking the publish call.
		go func() {
			<-shared.Done()
			fold()
		}()
	case <-ctx.Done():
		result.markTimedOut()
		go func() {
			<-shared.Done()
			fold()
		}()
	}
}
