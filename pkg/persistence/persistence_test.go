package persistence_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/component"
	"github.com/gardenfabric/core/pkg/eventmodel"
	"github.com/gardenfabric/core/pkg/persistence"
	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/store/memstore"
	"github.com/gardenfabric/core/pkg/valuetype"
)

func TestBatchCoalescesToLastValuePerProperty(t *testing.T) {
	st := memstore.New()
	svc := persistence.New(st, 16, 0)
	ctx := context.Background()

	deviceID := uuid.New()
	values := []int64{10, 20, 30, 40, 50}
	for _, v := range values {
		evt := eventmodel.NewPropertyChanged(deviceID, deviceID, "FlowRate", valuetype.KindInt, valuetype.Null(), valuetype.FromInt(v), propmeta.Metadata{}, eventmodel.RoutingData{})
		require.NoError(t, svc.HandleEvent(ctx, deviceID, evt))
	}

	require.NoError(t, svc.ProcessPendingEvents(ctx))

	props, err := st.Load(ctx, deviceID)
	require.NoError(t, err)
	flowRate, ok := props["FlowRate"].Int()
	require.True(t, ok)
	assert.Equal(t, int64(50), flowRate)
}

func TestGetPropertyReadsOnlyFromCache(t *testing.T) {
	st := memstore.New()
	svc := persistence.New(st, 16, 0)
	ctx := context.Background()
	deviceID := uuid.New()

	evt := eventmodel.NewPropertyChanged(deviceID, deviceID, "Status", valuetype.KindString, valuetype.Null(), valuetype.FromString("Ready"), propmeta.Metadata{}, eventmodel.RoutingData{})
	require.NoError(t, svc.HandleEvent(ctx, deviceID, evt))

	v, found := svc.GetProperty(deviceID, "Status")
	require.True(t, found)
	status, ok := v.String()
	require.True(t, ok)
	assert.Equal(t, "Ready", status)

	// not yet flushed: the store must not have it
	props, err := st.Load(ctx, deviceID)
	require.NoError(t, err)
	_, inStore := props["Status"]
	assert.False(t, inStore)
}

func TestAddOrUpdateHydratesFromExistingSnapshot(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	deviceID := uuid.New()

	tx, _ := st.BeginTransaction(ctx)
	require.NoError(t, tx.SaveWithMetadata(ctx, deviceID, map[string]valuetype.Value{
		"FlowRate": valuetype.FromInt(99),
	}, map[string]propmeta.Metadata{"FlowRate": {DisplayName: "Flow rate"}}))
	require.NoError(t, tx.Commit(ctx))

	svc := persistence.New(st, 16, 0)
	c := component.New(deviceID, deviceID, "pump-1", "Pump")
	require.NoError(t, svc.AddOrUpdate(ctx, c))

	v, found := svc.GetProperty(deviceID, "FlowRate")
	require.True(t, found)
	flowRate, ok := v.Int()
	require.True(t, ok)
	assert.Equal(t, int64(99), flowRate)
}
