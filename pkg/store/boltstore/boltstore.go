// Package boltstore is the production Store backend, using
// go.etcd.io/bbolt as an embedded, transactional key-value file: one
// bucket per device id, one key ("doc") per bucket holding the shared
// JSON wire document.
//
// bbolt's own transactions give us the commit-atomicity the spec
// requires for free; this package mostly adapts bbolt's *bolt.Tx to
// the store.Transaction contract and serializes Save/SaveWithMetadata
// calls against our own document encoding.
package boltstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/gardenfabric/core/pkg/ferrors"
	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/store"
	"github.com/gardenfabric/core/pkg/valuetype"
)

var docKey = []byte("doc")

// Store wraps a bbolt database file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w: %v", path, ferrors.ErrStoreIO, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func bucketName(id uuid.UUID) []byte {
	return []byte(id.String())
}

func (s *Store) Load(ctx context.Context, id uuid.UUID) (map[string]valuetype.Value, error) {
	props, _, err := s.loadBoth(id)
	return props, err
}

func (s *Store) LoadMetadata(ctx context.Context, id uuid.UUID) (map[string]propmeta.Metadata, error) {
	_, md, err := s.loadBoth(id)
	return md, err
}

func (s *Store) loadBoth(id uuid.UUID) (map[string]valuetype.Value, map[string]propmeta.Metadata, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(id))
		if b == nil {
			return nil
		}
		v := b.Get(docKey)
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("boltstore: load %s: %w: %v", id, ferrors.ErrStoreIO, err)
	}
	return store.DecodeDocument(data)
}

// BeginTransaction starts a writable bbolt transaction.
func (s *Store) BeginTransaction(ctx context.Context) (store.Transaction, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("boltstore: begin: %w: %v", ferrors.ErrStoreIO, err)
	}
	return &transaction{tx: tx}, nil
}

type transaction struct {
	tx       *bolt.Tx
	finished bool
}

func (t *transaction) Save(ctx context.Context, id uuid.UUID, properties map[string]valuetype.Value) error {
	b, err := t.tx.CreateBucketIfNotExists(bucketName(id))
	if err != nil {
		return fmt.Errorf("boltstore: save %s: %w: %v", id, ferrors.ErrStoreIO, err)
	}
	_, existingMD, err := store.DecodeDocument(b.Get(docKey))
	if err != nil {
		return err
	}
	return t.writeDoc(b, properties, existingMD)
}

func (t *transaction) SaveWithMetadata(ctx context.Context, id uuid.UUID, properties map[string]valuetype.Value, metadata map[string]propmeta.Metadata) error {
	b, err := t.tx.CreateBucketIfNotExists(bucketName(id))
	if err != nil {
		return fmt.Errorf("boltstore: save %s: %w: %v", id, ferrors.ErrStoreIO, err)
	}
	return t.writeDoc(b, properties, metadata)
}

func (t *transaction) writeDoc(b *bolt.Bucket, properties map[string]valuetype.Value, metadata map[string]propmeta.Metadata) error {
	data, err := store.EncodeDocument(properties, metadata)
	if err != nil {
		return err
	}
	if err := b.Put(docKey, data); err != nil {
		return fmt.Errorf("boltstore: put: %w: %v", ferrors.ErrStoreIO, err)
	}
	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("boltstore: commit: %w: %v", ferrors.ErrTransactionConflict, err)
	}
	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	return t.tx.Rollback()
}
