package circuitbreaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/circuitbreaker"
	"github.com/gardenfabric/core/pkg/ferrors"
)

var errBoom = errors.New("boom")

func TestOpensAfterMaxFailuresAndRejects(t *testing.T) {
	b := circuitbreaker.New("downstream", 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, func(context.Context) error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
	}

	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	err := b.Execute(ctx, func(context.Context) error {
		t.Fatal("operation must not run while circuit is open")
		return nil
	})
	assert.ErrorIs(t, err, ferrors.ErrCircuitBreakerOpen)
}

func TestHalfOpenSuccessClosesCircuitAndResetsCount(t *testing.T) {
	b := circuitbreaker.New("downstream", 1, 10*time.Millisecond)
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return errBoom }), errBoom)
	require.Equal(t, circuitbreaker.StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestHalfOpenFailureReopensCircuit(t *testing.T) {
	b := circuitbreaker.New("downstream", 1, 10*time.Millisecond)
	ctx := context.Background()

	require.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return errBoom }), errBoom)
	time.Sleep(20 * time.Millisecond)

	require.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}

func TestStateChangesEmitStateChangedEvent(t *testing.T) {
	b := circuitbreaker.New("downstream", 1, time.Hour)
	ctx := context.Background()

	var mu sync.Mutex
	var events []circuitbreaker.StateChangedEvent
	b.EmitEventHook = func(ctx context.Context, event circuitbreaker.StateChangedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		return nil
	}

	require.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return errBoom }), errBoom)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, circuitbreaker.StateClosed, events[0].OldState)
	assert.Equal(t, circuitbreaker.StateOpen, events[0].NewState)
}
