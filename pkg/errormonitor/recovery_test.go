package errormonitor_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/errormonitor"
)

func TestAttemptRecoveryRunsStrategiesInPriorityOrder(t *testing.T) {
	monitor := errormonitor.New(0)
	rm := errormonitor.NewRecoveryManager(monitor)
	deviceID := uuid.New()
	monitor.Report(errormonitor.Record{DeviceID: deviceID, ErrorCode: "E_X"})

	var order []string
	rm.RegisterStrategy(errormonitor.Strategy{
		Name:       "low",
		Priority:   1,
		CanRecover: func(errormonitor.Record) bool { return true },
		Attempt: func(ctx context.Context, r errormonitor.Record) bool {
			order = append(order, "low")
			return false
		},
	})
	rm.RegisterStrategy(errormonitor.Strategy{
		Name:       "high",
		Priority:   10,
		CanRecover: func(errormonitor.Record) bool { return true },
		Attempt: func(ctx context.Context, r errormonitor.Record) bool {
			order = append(order, "high")
			return true
		},
	})

	status := rm.AttemptRecovery(context.Background(), errormonitor.Record{DeviceID: deviceID, ErrorCode: "E_X"})
	require.True(t, status.IsSuccessful)
	assert.Equal(t, "high", status.SuccessfulStrategy)
	assert.Equal(t, []string{"high"}, order, "higher-priority strategy must run first and short-circuit")
	assert.Empty(t, monitor.ActiveErrorsForDevice(deviceID))
}

func TestAttemptRecoveryAllFailuresLeavesErrorActive(t *testing.T) {
	monitor := errormonitor.New(0)
	rm := errormonitor.NewRecoveryManager(monitor)
	deviceID := uuid.New()
	monitor.Report(errormonitor.Record{DeviceID: deviceID, ErrorCode: "E_X"})

	rm.RegisterStrategy(errormonitor.Strategy{
		Name:       "only",
		Priority:   1,
		CanRecover: func(errormonitor.Record) bool { return true },
		Attempt:    func(ctx context.Context, r errormonitor.Record) bool { return false },
	})

	status := rm.AttemptRecovery(context.Background(), errormonitor.Record{DeviceID: deviceID, ErrorCode: "E_X"})
	assert.False(t, status.IsSuccessful)
	assert.Equal(t, 1, status.AttemptCount)
	active := monitor.ActiveErrorsForDevice(deviceID)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].RecoveryAttempts)
}
