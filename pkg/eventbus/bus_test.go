package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/eventbus"
	"github.com/gardenfabric/core/pkg/eventmodel"
	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/valuetype"
)

type recordingHandler struct {
	id       uuid.UUID
	mu       sync.Mutex
	received []eventmodel.Event
	fail     bool
	delay    time.Duration
}

func (h *recordingHandler) HandleEvent(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.received = append(h.received, event)
	h.mu.Unlock()
	if h.fail {
		return assertErr
	}
	return nil
}

func (h *recordingHandler) TargetID() uuid.UUID { return h.id }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

type assertError string

func (e assertError) Error() string { return string(e) }

const assertErr = assertError("boom")

func TestPropertyChangeDeliveredToUnfilteredSubscriber(t *testing.T) {
	bus := eventbus.New(nil)
	h := &recordingHandler{id: uuid.New()}
	bus.Subscribe(h, eventbus.Options{Synchronous: true})

	deviceID := uuid.New()
	evt := eventmodel.NewPropertyChanged(deviceID, deviceID, "FlowRate", valuetype.KindInt, valuetype.Null(), valuetype.FromInt(50), propmeta.Metadata{}, eventmodel.RoutingData{})

	result, err := bus.Publish(context.Background(), deviceID, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount())
	require.Equal(t, 1, h.count())
	assert.Equal(t, "FlowRate", h.received[0].Payload.(eventmodel.PropertyChangedPayload).PropertyName)
}

func TestExplicitTargetIDsRestrictDelivery(t *testing.T) {
	bus := eventbus.New(nil)
	inTarget := &recordingHandler{id: uuid.New()}
	outTarget := &recordingHandler{id: uuid.New()}
	bus.Subscribe(inTarget, eventbus.Options{Synchronous: true})
	bus.Subscribe(outTarget, eventbus.Options{Synchronous: true})

	deviceID := uuid.New()
	evt := eventmodel.NewCommand(deviceID, deviceID, "Start", nil, eventmodel.RoutingData{TargetIDs: []uuid.UUID{inTarget.id}})

	_, err := bus.Publish(context.Background(), deviceID, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, inTarget.count())
	assert.Equal(t, 0, outTarget.count())
}

func TestTimeoutMarksPublishButLateSuccessStillCounts(t *testing.T) {
	bus := eventbus.New(nil)
	h := &recordingHandler{id: uuid.New(), delay: 100 * time.Millisecond}
	bus.Subscribe(h, eventbus.Options{})

	deviceID := uuid.New()
	evt := eventmodel.NewCommand(deviceID, deviceID, "Noop", nil, eventmodel.RoutingData{Timeout: 10 * time.Millisecond})

	result, err := bus.Publish(context.Background(), deviceID, evt)
	require.NoError(t, err)
	assert.True(t, result.TimedOut())

	require.Eventually(t, func() bool {
		return result.SuccessCount() == 1
	}, time.Second, 5*time.Millisecond, "late completion should still increment successCount")
}

func TestHandlerFailureDoesNotCancelSiblings(t *testing.T) {
	bus := eventbus.New(nil)
	failing := &recordingHandler{id: uuid.New(), fail: true}
	succeeding := &recordingHandler{id: uuid.New()}
	bus.Subscribe(failing, eventbus.Options{Synchronous: true})
	bus.Subscribe(succeeding, eventbus.Options{Synchronous: true})

	deviceID := uuid.New()
	evt := eventmodel.NewCommand(deviceID, deviceID, "Ping", nil, eventmodel.RoutingData{})
	result, err := bus.Publish(context.Background(), deviceID, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount())
	assert.Equal(t, 1, result.FailureCount())
}
