package errormonitor

import (
	"context"
	"sort"
	"time"
)

// Strategy is a named, priority-ranked procedure that attempts to
// clear an error. Strategies with higher Priority are tried first.
type Strategy struct {
	Name       string
	Priority   int
	CanRecover func(rec Record) bool
	Attempt    func(ctx context.Context, rec Record) bool
}

// RecoveryStatus summarizes the outcome of an attemptRecovery call.
type RecoveryStatus struct {
	IsSuccessful      bool
	AttemptCount      int
	SuccessfulStrategy string
	ErrorCodes        []string
	Timestamp         time.Time
	SuccessCount      int
	LastAttempt       string
}

// RecoveryManager runs an ordered set of Strategy values against
// reported errors and feeds outcomes back into a Monitor.
type RecoveryManager struct {
	monitor    *Monitor
	strategies []Strategy
}

// NewRecoveryManager builds a manager bound to monitor.
func NewRecoveryManager(monitor *Monitor) *RecoveryManager {
	return &RecoveryManager{monitor: monitor}
}

// RegisterStrategy adds a recovery strategy. Strategies are
// re-sorted by descending priority on every registration.
func (rm *RecoveryManager) RegisterStrategy(s Strategy) {
	rm.strategies = append(rm.strategies, s)
	sort.SliceStable(rm.strategies, func(i, j int) bool {
		return rm.strategies[i].Priority > rm.strategies[j].Priority
	})
}

// AttemptRecovery runs applicable strategies in descending priority
// order until one succeeds, recording each attempt against the
// monitor and returning a RecoveryStatus.
func (rm *RecoveryManager) AttemptRecovery(ctx context.Context, rec Record) RecoveryStatus {
	status := RecoveryStatus{
		ErrorCodes: []string{rec.ErrorCode},
		Timestamp:  rec.Timestamp,
	}

	for _, s := range rm.strategies {
		if s.CanRecover == nil || !s.CanRecover(rec) {
			continue
		}

		select {
		case <-ctx.Done():
			return status
		default:
		}

		status.AttemptCount++
		status.LastAttempt = s.Name
		success := s.Attempt != nil && s.Attempt(ctx, rec)

		if rm.monitor != nil {
			rm.monitor.RegisterRecoveryAttempt(rec.DeviceID, rec.ErrorCode, success)
		}

		if success {
			status.IsSuccessful = true
			status.SuccessfulStrategy = s.Name
			status.SuccessCount++
			return status
		}
	}

	return status
}
