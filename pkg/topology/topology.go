// Package topology tracks the directed graph of connections between
// components: the fabric's wiring diagram, consulted by the event bus
// for connected-source fan-out.
package topology

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is a directed edge from a source component to a target
// component, with an optional condition expression gating its
// activation (evaluated elsewhere, by the condition package).
type Connection struct {
	ConnectionID uuid.UUID
	SourceID     uuid.UUID
	TargetID     uuid.UUID
	Condition    string
}

// Service owns the connection table. Safe for concurrent use.
type Service struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]Connection
}

// New constructs an empty topology.
func New() *Service {
	return &Service{connections: make(map[uuid.UUID]Connection)}
}

// AddConnection registers a new directed edge and returns its id.
func (s *Service) AddConnection(sourceID, targetID uuid.UUID, condition string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.connections[id] = Connection{
		ConnectionID: id,
		SourceID:     sourceID,
		TargetID:     targetID,
		Condition:    condition,
	}
	return id
}

// UpdateCondition mutates an existing connection's condition
// expression. Reports false if connectionID is unknown.
func (s *Service) UpdateCondition(connectionID uuid.UUID, condition string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.connections[connectionID]
	if !found {
		return false
	}
	c.Condition = condition
	s.connections[connectionID] = c
	return true
}

// RemoveConnection deletes a connection, reporting whether it existed.
func (s *Service) RemoveConnection(connectionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.connections[connectionID]
	delete(s.connections, connectionID)
	return found
}

// Connection looks up a single connection by id.
func (s *Service) Connection(connectionID uuid.UUID) (Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, found := s.connections[connectionID]
	return c, found
}

// ConnectionsFrom returns all connections whose source is sourceID.
func (s *Service) ConnectionsFrom(sourceID uuid.UUID) []Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Connection
	for _, c := range s.connections {
		if c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	return out
}

// TargetsOf returns the distinct set of target ids directly reachable
// from sourceID, used by the bus's includeConnectedSources fan-out.
func (s *Service) TargetsOf(sourceID uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, c := range s.connections {
		if c.SourceID != sourceID {
			continue
		}
		if _, dup := seen[c.TargetID]; dup {
			continue
		}
		seen[c.TargetID] = struct{}{}
		out = append(out, c.TargetID)
	}
	return out
}
