package saga

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryCheckpointStore()
	ctx := context.Background()

	loaded, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	record := CheckpointRecord{Status: StatusCompleted, Result: []byte(`{"n":1}`)}
	require.NoError(t, store.Save(ctx, "step-1", record))

	loaded, err = store.Load(ctx, "step-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StatusCompleted, loaded.Status)
	assert.JSONEq(t, `{"n":1}`, string(loaded.Result))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreConcurrentDisjointKeys(t *testing.T) {
	store := NewMemoryCheckpointStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("step-%d", i)
			assert.NoError(t, store.Save(ctx, key, CheckpointRecord{Status: StatusCompleted}))
			record, err := store.Load(ctx, key)
			assert.NoError(t, err)
			assert.NotNil(t, record)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, store.Len())
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	loaded, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Save(ctx, "charge-payment",
		CheckpointRecord{Status: StatusCompleted, Result: []byte(`"ch-1"`)}))
	require.NoError(t, store.Save(ctx, PendingStepKey,
		CheckpointRecord{Status: StatusPendingApproval, Result: []byte(`"charge-payment"`)}))

	loaded, err = store.Load(ctx, "charge-payment")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StatusCompleted, loaded.Status)

	marker, err := store.Load(ctx, PendingStepKey)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, StatusPendingApproval, marker.Status)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "reserve", CheckpointRecord{Status: StatusCompleted}))

	second, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)
	record, err := second.Load(ctx, "reserve")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusCompleted, record.Status)
}

func TestCompensationKeySuffix(t *testing.T) {
	assert.Equal(t, "reserve:compensate", compensationKey("reserve"))
}

func TestIdempotencyKeyOverride(t *testing.T) {
	plain := noopStep("plain")
	assert.Equal(t, "plain", idempotencyKey(plain))

	keyed := noopStep("keyed", WithIdempotencyKey("order-42:keyed"))
	assert.Equal(t, "order-42:keyed", idempotencyKey(keyed))
}
