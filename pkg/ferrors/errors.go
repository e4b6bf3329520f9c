// Package ferrors defines the sentinel error taxonomy shared across the
// component, event bus and persistence layers.
package ferrors

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err...) for context
// and unwrap with errors.Is.
var (
	// ErrValidation is returned when a property write is rejected by a
	// validator or a read-only flag.
	ErrValidation = errors.New("validation failed")

	// ErrTypeMismatch is returned when a typed get does not match the
	// stored runtime type.
	ErrTypeMismatch = errors.New("property type mismatch")

	// ErrDisposed is returned for any mutation attempted after dispose.
	ErrDisposed = errors.New("component disposed")

	// ErrNotLoaded is returned when a property manager is used before
	// its properties have been loaded.
	ErrNotLoaded = errors.New("properties not loaded")

	// ErrNotFound is returned for a missing property, subscription,
	// connection or device.
	ErrNotFound = errors.New("not found")

	// ErrStoreIO is returned on a backing store failure.
	ErrStoreIO = errors.New("store i/o error")

	// ErrTransactionConflict is returned on concurrent flush contention.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrHandlerFailure is recorded when a subscriber handler returns
	// an error.
	ErrHandlerFailure = errors.New("handler failure")

	// ErrTimeout is returned when a publish exceeds its routing timeout.
	ErrTimeout = errors.New("publish timed out")

	// ErrCircuitBreakerOpen is returned while a circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrCancelled indicates cooperative cancellation, not a failure.
	ErrCancelled = errors.New("operation cancelled")
)
