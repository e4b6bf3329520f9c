// Package circuitbreaker guards calls to a downstream service behind
// a per-service Closed/Open/HalfOpen gate.
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/gardenfabric/core/pkg/ferrors"
)

// State is one of the three circuit states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// StateChangedEvent is emitted whenever a breaker transitions state.
type StateChangedEvent struct {
	ServiceName     string
	OldState        State
	NewState        State
	LastFailureTime time.Time
	Reason          string
}

const (
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 60 * time.Second
)

// Breaker gates calls for a single service name.
type Breaker struct {
	serviceName  string
	maxFailures  int
	resetTimeout time.Duration

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	pending         *StateChangedEvent

	// EmitEventHook, when set, is invoked (outside the lock) on every
	// state transition, mirroring the component package's hook-based
	// event emission.
	EmitEventHook func(ctx context.Context, event StateChangedEvent) error
}

// New constructs a Breaker for serviceName. maxFailures <= 0 and
// resetTimeout <= 0 fall back to their documented defaults.
func New(serviceName string, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &Breaker{
		serviceName:  serviceName,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// ServiceName returns the name this breaker guards.
func (b *Breaker) ServiceName() string {
	return b.serviceName
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed right now, transitioning
// Open to HalfOpen once resetTimeout has elapsed.
func (b *Breaker) Allow(ctx context.Context) (bool, error) {
	b.mu.Lock()
	switch b.state {
	case StateClosed, StateHalfOpen:
		b.mu.Unlock()
		return true, nil
	case StateOpen:
		if time.Since(b.lastFailureTime) > b.resetTimeout {
			b.transitionLocked(StateHalfOpen, "reset timeout elapsed")
			b.mu.Unlock()
			return true, nil
		}
		b.mu.Unlock()
		return false, ferrors.ErrCircuitBreakerOpen
	default:
		b.mu.Unlock()
		return false, ferrors.ErrCircuitBreakerOpen
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	allowed, err := b.Allow(ctx)
	if !allowed {
		return err
	}

	callErr := fn(ctx)
	if callErr != nil {
		b.recordFailure(ctx)
		return callErr
	}
	b.recordSuccess(ctx)
	return nil
}

func (b *Breaker) recordFailure(ctx context.Context) {
	b.mu.Lock()
	b.lastFailureTime = time.Now()
	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen, "half-open probe failed")
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.maxFailures {
			b.transitionLocked(StateOpen, "failure threshold reached")
		}
	case StateOpen:
		// already open; refresh lastFailureTime only.
	}
	b.mu.Unlock()
	b.emitPending(ctx)
}

func (b *Breaker) recordSuccess(ctx context.Context) {
	b.mu.Lock()
	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateClosed, "half-open probe succeeded")
		b.failureCount = 0
	case StateClosed:
		b.failureCount = 0
	}
	b.mu.Unlock()
	b.emitPending(ctx)
}

// transitionLocked must be called with mu held. It stages the event
// for emitPending to deliver once the lock is released.
func (b *Breaker) transitionLocked(next State, reason string) {
	old := b.state
	b.state = next
	b.pending = &StateChangedEvent{
		ServiceName:     b.serviceName,
		OldState:        old,
		NewState:        next,
		LastFailureTime: b.lastFailureTime,
		Reason:          reason,
	}
}

func (b *Breaker) emitPending(ctx context.Context) {
	b.mu.Lock()
	evt := b.pending
	b.pending = nil
	b.mu.Unlock()

	if evt == nil || b.EmitEventHook == nil {
		return
	}
	_ = b.EmitEventHook(ctx, *evt)
}
