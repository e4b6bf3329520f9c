package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/eventmodel"
	"github.com/gardenfabric/core/pkg/queue"
)

type orderRecordingHandler struct {
	mu    sync.Mutex
	order []string
	name  string
}

func (h *orderRecordingHandler) HandleEvent(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
	h.mu.Lock()
	h.order = append(h.order, h.name)
	h.mu.Unlock()
	return nil
}

func (h *orderRecordingHandler) TargetID() uuid.UUID { return uuid.Nil }

func TestCriticalBandNeverStarvedByNormalFlood(t *testing.T) {
	p := queue.NewProcessor(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Shutdown()

	block := make(chan struct{})
	normalHandler := &orderRecordingHandler{name: "normal"}
	blockingHandler := queueHandlerFunc(func(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
		<-block
		return normalHandler.HandleEvent(ctx, sender, event)
	})

	deviceID := uuid.New()
	// saturate the Normal band's single worker
	p.Enqueue(queue.Item{
		Event:   eventmodel.NewCommand(deviceID, deviceID, "slow", nil, eventmodel.RoutingData{Priority: eventmodel.PriorityNormal}),
		Handler: blockingHandler,
		Result:  queue.NewItemResult(),
	})

	critical := &orderRecordingHandler{name: "critical"}
	criticalResult := queue.NewItemResult()
	p.Enqueue(queue.Item{
		Event:   eventmodel.NewCommand(deviceID, deviceID, "urgent", nil, eventmodel.RoutingData{Priority: eventmodel.PriorityCritical}),
		Handler: critical,
		Result:  criticalResult,
	})

	select {
	case <-criticalResult.Done():
		assert.True(t, criticalResult.Success())
	case <-time.After(time.Second):
		t.Fatal("critical item starved by blocked normal-band worker")
	}
	close(block)
}

type queueHandlerFunc func(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error

func (f queueHandlerFunc) HandleEvent(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
	return f(ctx, sender, event)
}

func (f queueHandlerFunc) TargetID() uuid.UUID { return uuid.Nil }

func TestItemResultCompletesEvenOnFailure(t *testing.T) {
	p := queue.NewProcessor(1)
	ctx := context.Background()
	p.Start(ctx)
	defer p.Shutdown()

	deviceID := uuid.New()
	failing := queueHandlerFunc(func(ctx context.Context, sender uuid.UUID, event eventmodel.Event) error {
		return assertErr
	})
	result := queue.NewItemResult()
	p.Enqueue(queue.Item{
		Event:   eventmodel.NewCommand(deviceID, deviceID, "x", nil, eventmodel.RoutingData{}),
		Handler: failing,
		Result:  result,
	})

	require.Eventually(t, func() bool {
		select {
		case <-result.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.False(t, result.Success())
	assert.ErrorIs(t, result.Err(), assertErr)
}

type assertError string

func (e assertError) Error() string { return string(e) }

const assertErr = assertError("boom")
