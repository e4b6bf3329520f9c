// Package memstore is an in-memory Store used by tests and by any
// caller that does not need the content to outlive the process. It
// round-trips through the same JSON wire encoding as boltstore so
// tests exercise the real (de)serialization path.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/store"
	"github.com/gardenfabric/core/pkg/valuetype"
)

// Store is a mutex-guarded map of device id to its encoded document.
type Store struct {
	mu   sync.RWMutex
	docs map[uuid.UUID][]byte

	txMu sync.Mutex // serializes begin-to-commit/rollback, per spec's "flushes are serialized"
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[uuid.UUID][]byte)}
}

func (s *Store) Load(ctx context.Context, id uuid.UUID) (map[string]valuetype.Value, error) {
	s.mu.RLock()
	data := s.docs[id]
	s.mu.RUnlock()
	props, _, err := store.DecodeDocument(data)
	return props, err
}

func (s *Store) LoadMetadata(ctx context.Context, id uuid.UUID) (map[string]propmeta.Metadata, error) {
	s.mu.RLock()
	data := s.docs[id]
	s.mu.RUnlock()
	_, md, err := store.DecodeDocument(data)
	return md, err
}

func (s *Store) BeginTransaction(ctx context.Context) (store.Transaction, error) {
	s.txMu.Lock()
	return &transaction{store: s, writes: make(map[uuid.UUID][]byte)}, nil
}

type transaction struct {
	store    *Store
	writes   map[uuid.UUID][]byte
	finished bool
}

func (t *transaction) Save(ctx context.Context, id uuid.UUID, properties map[string]valuetype.Value) error {
	t.store.mu.RLock()
	existing := t.store.docs[id]
	t.store.mu.RUnlock()
	_, existingMD, err := store.DecodeDocument(existing)
	if err != nil {
		return err
	}
	return t.SaveWithMetadata(ctx, id, properties, existingMD)
}

func (t *transaction) SaveWithMetadata(ctx context.Context, id uuid.UUID, properties map[string]valuetype.Value, metadata map[string]propmeta.Metadata) error {
	data, err := store.EncodeDocument(properties, metadata)
	if err != nil {
		return err
	}
	t.writes[id] = data
	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	defer t.store.txMu.Unlock()
	t.store.mu.Lock()
	for id, data := range t.writes {
		t.store.docs[id] = data
	}
	t.store.mu.Unlock()
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.store.txMu.Unlock()
	t.writes = nil
	return nil
}
