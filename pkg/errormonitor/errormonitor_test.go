package errormonitor_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/errormonitor"
)

func TestReportTracksActiveErrorPerDeviceAndCode(t *testing.T) {
	m := errormonitor.New(0)
	deviceID := uuid.New()

	m.Report(errormonitor.Record{
		DeviceID:  deviceID,
		ErrorCode: "E_TIMEOUT",
		Severity:  errormonitor.SeverityError,
		Timestamp: time.Now(),
	})

	assert.True(t, m.HasActiveErrors(errormonitor.SeverityWarning))
	assert.False(t, m.HasActiveErrors(errormonitor.SeverityCritical))

	active := m.ActiveErrorsForDevice(deviceID)
	require.Len(t, active, 1)
	assert.Equal(t, "E_TIMEOUT", active[0].ErrorCode)
}

func TestRecentErrorsIsBoundedFIFO(t *testing.T) {
	m := errormonitor.New(3)
	deviceID := uuid.New()

	for i := 0; i < 5; i++ {
		m.Report(errormonitor.Record{
			DeviceID:  deviceID,
			ErrorCode: "E_X",
			Timestamp: time.Now(),
			Context:   map[string]string{"i": string(rune('0' + i))},
		})
	}

	recent := m.RecentErrors(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "4", recent[len(recent)-1].Context["i"])
}

func TestMarkHandledClearsActiveError(t *testing.T) {
	m := errormonitor.New(0)
	deviceID := uuid.New()
	m.Report(errormonitor.Record{DeviceID: deviceID, ErrorCode: "E_X"})

	assert.True(t, m.MarkHandled(deviceID, "E_X"))
	assert.Empty(t, m.ActiveErrorsForDevice(deviceID))
	assert.False(t, m.MarkHandled(deviceID, "E_X"))
}

func TestRegisterRecoveryAttemptSuccessClearsFailureIncrements(t *testing.T) {
	m := errormonitor.New(0)
	deviceID := uuid.New()
	m.Report(errormonitor.Record{DeviceID: deviceID, ErrorCode: "E_X"})

	assert.True(t, m.RegisterRecoveryAttempt(deviceID, "E_X", false))
	active := m.ActiveErrorsForDevice(deviceID)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].RecoveryAttempts)

	assert.True(t, m.RegisterRecoveryAttempt(deviceID, "E_X", true))
	assert.Empty(t, m.ActiveErrorsForDevice(deviceID))
}

func TestStatisticsCountsReportsPerErrorCode(t *testing.T) {
	m := errormonitor.New(0)
	deviceA, deviceB := uuid.New(), uuid.New()
	m.Report(errormonitor.Record{DeviceID: deviceA, ErrorCode: "E_X"})
	m.Report(errormonitor.Record{DeviceID: deviceB, ErrorCode: "E_X"})
	m.Report(errormonitor.Record{DeviceID: deviceA, ErrorCode: "E_Y"})

	stats := m.Statistics(time.Time{})
	assert.Equal(t, 2, stats["E_X"])
	assert.Equal(t, 1, stats["E_Y"])
}
