package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
)

func newTestKV(t *testing.T) interfaces.KeyValueStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "kv"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewKVStorage(db, logger)
}

func TestKVSetGet(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "anthropic_api_key", "sk-test-123"))

	value, err := kv.Get(ctx, "anthropic_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", value)

	// Keys are case-insensitive
	value, err = kv.Get(ctx, "  ANTHROPIC_API_KEY ")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", value)
}

func TestKVGetMissing(t *testing.T) {
	kv := newTestKV(t)

	_, err := kv.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestKVUpsertOverwrites(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "fec_api_key", "old"))
	require.NoError(t, kv.Set(ctx, "fec_api_key", "new"))

	value, err := kv.Get(ctx, "fec_api_key")
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestKVDelete(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "temp", "value"))
	require.NoError(t, kv.Delete(ctx, "temp"))

	_, err := kv.Get(ctx, "temp")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestKVGetAll(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", "1"))
	require.NoError(t, kv.Set(ctx, "b", "2"))

	all, err := kv.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)
}
