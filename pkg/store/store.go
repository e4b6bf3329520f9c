// Package store defines the transactional persistence contract the
// persistence service commits batched property writes through, plus
// the wire encoding shared by every backend (pkg/store/memstore for
// tests, pkg/store/boltstore for production).
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/valuetype"
)

// Transaction is a scoped store operation. Disposal without Commit
// must behave as Rollback; implementations that hold OS resources
// (file handles, db transactions) should release them on either path.
type Transaction interface {
	// Save stores properties for id, leaving any previously persisted
	// metadata for unchanged properties untouched.
	Save(ctx context.Context, id uuid.UUID, properties map[string]valuetype.Value) error
	// SaveWithMetadata stores properties and overwrites metadata for id.
	SaveWithMetadata(ctx context.Context, id uuid.UUID, properties map[string]valuetype.Value, metadata map[string]propmeta.Metadata) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the backing key-value abstraction the persistence service
// borrows. A committed transaction must be atomically observable to
// subsequent Load/LoadMetadata calls.
type Store interface {
	BeginTransaction(ctx context.Context) (Transaction, error)
	Load(ctx context.Context, id uuid.UUID) (map[string]valuetype.Value, error)
	LoadMetadata(ctx context.Context, id uuid.UUID) (map[string]propmeta.Metadata, error)
}
