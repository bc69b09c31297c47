package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galerly/galerly/cache/memory"
	"github.com/galerly/galerly/cache/types"
)

func TestKeyBuilder(t *testing.T) {
	kb := NewKeyBuilder("asset_meta")
	assert.Equal(t, "asset_meta", kb.Build())
	assert.Equal(t, "asset_meta:abc", kb.Build("abc"))
	assert.Equal(t, "asset_meta:a:b", kb.Build("a", "b"))
	assert.Equal(t, "asset_meta:42", kb.BuildID(42))
}

func TestMemoryProvider_SetGet(t *testing.T) {
	provider, err := memory.NewMemory(memory.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()

	require.NoError(t, provider.Set(ctx, "k", []byte("v"), time.Minute))

	var got []byte
	require.NoError(t, provider.Get(ctx, "k", &got))
	assert.Equal(t, []byte("v"), got)

	exists, err := provider.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, provider.Delete(ctx, "k"))
	err = provider.Get(ctx, "k", &got)
	assert.True(t, types.IsCacheMiss(err))
}

func TestMemoryProvider_StructRoundTrip(t *testing.T) {
	provider, err := memory.NewMemory(memory.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	require.NoError(t, err)
	defer provider.Close()

	type row struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}

	ctx := context.Background()
	require.NoError(t, provider.Set(ctx, "row:1", row{ID: 1, Name: "spring wedding"}, time.Minute))

	var got row
	require.NoError(t, provider.Get(ctx, "row:1", &got))
	assert.Equal(t, uint(1), got.ID)
	assert.Equal(t, "spring wedding", got.Name)
}

func TestIsCacheMiss(t *testing.T) {
	assert.True(t, types.IsCacheMiss(types.ErrCacheMiss))
	assert.False(t, types.IsCacheMiss(assert.AnError))
	assert.False(t, types.IsCacheMiss(nil))
}
