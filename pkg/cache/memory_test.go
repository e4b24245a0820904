package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
)

type cachedGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestMemoryStoreRoundTripAndExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "groups:all", []cachedGroup{{ID: "g1", Name: "L1"}}, time.Minute))

	var got []cachedGroup
	require.NoError(t, store.Get(ctx, "groups:all", &got))
	assert.Equal(t, "L1", got[0].Name)

	now = now.Add(61 * time.Second)
	err := store.Get(ctx, "groups:all", &got)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreDeleteByPattern(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "groups:all", 1, 0))
	require.NoError(t, store.Set(ctx, "groups:year:1", 2, 0))
	require.NoError(t, store.Set(ctx, "rooms:all", 3, 0))

	require.NoError(t, store.DeleteByPattern(ctx, "groups:*"))

	var v int
	assert.ErrorIs(t, store.Get(ctx, "groups:all", &v), appErrors.ErrCacheMiss)
	require.NoError(t, store.Get(ctx, "rooms:all", &v))
	assert.Equal(t, 3, v)
}
