package memstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/store/memstore"
	"github.com/gardenfabric/core/pkg/valuetype"
)

func TestLoadAfterCommitIsAtomicallyObservable(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	id := uuid.New()

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveWithMetadata(ctx, id, map[string]valuetype.Value{
		"FlowRate": valuetype.FromInt(50),
	}, map[string]propmeta.Metadata{
		"FlowRate": {DisplayName: "Flow rate"},
	}))
	require.NoError(t, tx.Commit(ctx))

	props, err := s.Load(ctx, id)
	require.NoError(t, err)
	flowRate, ok := props["FlowRate"].Int()
	require.True(t, ok)
	assert.Equal(t, int64(50), flowRate)

	md, err := s.LoadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Flow rate", md["FlowRate"].DisplayName)
}

func TestSaveWithoutMetadataPreservesPriorMetadata(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	id := uuid.New()

	tx1, _ := s.BeginTransaction(ctx)
	require.NoError(t, tx1.SaveWithMetadata(ctx, id, map[string]valuetype.Value{"FlowRate": valuetype.FromInt(10)},
		map[string]propmeta.Metadata{"FlowRate": {DisplayName: "Flow rate"}}))
	require.NoError(t, tx1.Commit(ctx))

	tx2, _ := s.BeginTransaction(ctx)
	require.NoError(t, tx2.Save(ctx, id, map[string]valuetype.Value{"FlowRate": valuetype.FromInt(20)}))
	require.NoError(t, tx2.Commit(ctx))

	md, err := s.LoadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Flow rate", md["FlowRate"].DisplayName, "bare save must not clobber prior metadata")
}

func TestRollbackDiscardsUncommittedWrites(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	id := uuid.New()

	tx, _ := s.BeginTransaction(ctx)
	require.NoError(t, tx.Save(ctx, id, map[string]valuetype.Value{"X": valuetype.FromInt(1)}))
	require.NoError(t, tx.Rollback(ctx))

	props, err := s.Load(ctx, id)
	require.NoError(t, err)
	_, found := props["X"]
	assert.False(t, found)
}
