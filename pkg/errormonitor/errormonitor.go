// Package errormonitor tracks active errors per device and feeds the
// recovery manager: a bounded recent-errors FIFO, a per-device
// per-errorCode table, and running error-code statistics.
package errormonitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity orders how urgently an error needs attention.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
	SeverityCatastrophic
)

// Source identifies where an error originated, for routing/filtering.
type Source int

const (
	SourceComponent Source = iota
	SourceEventBus
	SourcePersistence
	SourceStore
	SourceUnknown
)

// Record is one reported error.
type Record struct {
	DeviceID         uuid.UUID
	ErrorCode        string
	Message          string
	Severity         Severity
	Source           Source
	Timestamp        time.Time
	Context          map[string]string
	RecoveryAttempts int
	Exception        error
}

// Monitor is the bounded error ledger. Safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	capacity int
	recent   []Record // ring-like FIFO, oldest first, trimmed to capacity

	deviceErrors map[uuid.UUID]map[string]*Record
	stats        map[string]int
}

// DefaultCapacity matches the spec's default recent-errors bound.
const DefaultCapacity = 1000

// New constructs a Monitor with the given recent-errors capacity
// (DefaultCapacity if <= 0).
func New(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Monitor{
		capacity:     capacity,
		deviceErrors: make(map[uuid.UUID]map[string]*Record),
		stats:        make(map[string]int),
	}
}

// Report records a new error occurrence. An existing unresolved record
// for the same device+errorCode is replaced by rec, including its
// RecoveryAttempts count.
func (m *Monitor) Report(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCode, found := m.deviceErrors[rec.DeviceID]
	if !found {
		byCode = make(map[string]*Record)
		m.deviceErrors[rec.DeviceID] = byCode
	}
	stored := rec
	byCode[rec.ErrorCode] = &stored

	m.recent = append(m.recent, stored)
	if len(m.recent) > m.capacity {
		m.recent = m.recent[len(m.recent)-m.capacity:]
	}
	m.stats[rec.ErrorCode]++
}

// RecentErrors returns up to n of the most recently reported errors,
// newest last.
func (m *Monitor) RecentErrors(n int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.recent) {
		n = len(m.recent)
	}
	out := make([]Record, n)
	copy(out, m.recent[len(m.recent)-n:])
	return out
}

// HasActiveErrors reports whether any device has an unresolved error
// at or above minSeverity.
func (m *Monitor) HasActiveErrors(minSeverity Severity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, byCode := range m.deviceErrors {
		for _, rec := range byCode {
			if rec.Severity >= minSeverity {
				return true
			}
		}
	}
	return false
}

// ActiveErrorsForDevice returns all unresolved errors for deviceID.
func (m *Monitor) ActiveErrorsForDevice(deviceID uuid.UUID) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCode, found := m.deviceErrors[deviceID]
	if !found {
		return nil
	}
	out := make([]Record, 0, len(byCode))
	for _, rec := range byCode {
		out = append(out, *rec)
	}
	return out
}

// MarkHandled removes the active record for deviceID+errorCode,
// reporting whether one existed.
func (m *Monitor) MarkHandled(deviceID uuid.UUID, errorCode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCode, found := m.deviceErrors[deviceID]
	if !found {
		return false
	}
	_, found = byCode[errorCode]
	delete(byCode, errorCode)
	return found
}

// RegisterRecoveryAttempt removes the record on success, or increments
// its attempt counter on failure. Reports false if no active record
// exists for deviceID+errorCode.
func (m *Monitor) RegisterRecoveryAttempt(deviceID uuid.UUID, errorCode string, success bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCode, found := m.deviceErrors[deviceID]
	if !found {
		return false
	}
	rec, found := byCode[errorCode]
	if !found {
		return false
	}
	if success {
		delete(byCode, errorCode)
		return true
	}
	rec.RecoveryAttempts++
	return true
}

// Statistics returns error counts by code. With the zero time.Time it
// returns lifetime counts. With a non-zero since, it tallies only
// errors reported at or after since by scanning the recent-errors
// FIFO, so a window wider than the FIFO's retention (capacity reports,
// oldest first) undercounts rather than reaching further into history.
func (m *Monitor) Statistics(since time.Time) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if since.IsZero() {
		out := make(map[string]int, len(m.stats))
		for k, v := range m.stats {
			out[k] = v
		}
		return out
	}

	out := make(map[string]int)
	for _, rec := range m.recent {
		if rec.Timestamp.Before(since) {
			continue
		}
		out[rec.ErrorCode]++
	}
	return out
}
