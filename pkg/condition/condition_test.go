package condition_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gardenfabric/core/pkg/condition"
	"github.com/gardenfabric/core/pkg/valuetype"
)

type fakeReader map[uuid.UUID]map[string]valuetype.Value

func (f fakeReader) GetProperty(deviceID uuid.UUID, propertyName string) (valuetype.Value, bool) {
	props, found := f[deviceID]
	if !found {
		return valuetype.Null(), false
	}
	v, found := props[propertyName]
	return v, found
}

func TestNumericComparisonOnSourceDevice(t *testing.T) {
	sourceID, targetID := uuid.New(), uuid.New()
	reader := fakeReader{
		sourceID: {"Temperature": valuetype.FromInt(30)},
	}
	assert.True(t, condition.Evaluate(context.Background(), sourceID, targetID, "Temperature > 25", reader))
	assert.False(t, condition.Evaluate(context.Background(), sourceID, targetID, "Temperature < 25", reader))
}

func TestStringComparisonOnTargetDevice(t *testing.T) {
	sourceID, targetID := uuid.New(), uuid.New()
	reader := fakeReader{
		targetID: {"Status": valuetype.FromString("Ready")},
	}
	assert.True(t, condition.Evaluate(context.Background(), sourceID, targetID, `target.Status == "Ready"`, reader))
	assert.False(t, condition.Evaluate(context.Background(), sourceID, targetID, `target.Status == "Busy"`, reader))
}

func TestEmptyConditionIsAlwaysTrue(t *testing.T) {
	assert.True(t, condition.Evaluate(context.Background(), uuid.New(), uuid.New(), "", fakeReader{}))
}

func TestMissingPropertyIsAlwaysFalse(t *testing.T) {
	assert.False(t, condition.Evaluate(context.Background(), uuid.New(), uuid.New(), "Temperature > 25", fakeReader{}))
}
