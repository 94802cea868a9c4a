package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimiradmaev/dosekit/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok := store.GetInsulinOnBoard(ctx, 1)
	assert.False(t, ok)

	now := time.Now()
	iob := []domain.InsulinValue{{Date: now, Value: 1.5}}
	store.SetInsulinOnBoard(ctx, 1, iob)

	got, ok := store.GetInsulinOnBoard(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, iob, got)

	cob := []domain.CarbValue{{StartDate: now, EndDate: now, Value: 20}}
	store.SetCarbsOnBoard(ctx, 1, cob)
	gotCOB, ok := store.GetCarbsOnBoard(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, cob, gotCOB)

	// Other users are isolated.
	_, ok = store.GetInsulinOnBoard(ctx, 2)
	assert.False(t, ok)
}

func TestMemoryStoreInvalidateUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.SetInsulinOnBoard(ctx, 1, []domain.InsulinValue{{Value: 1}})
	store.SetCarbsOnBoard(ctx, 1, []domain.CarbValue{{Value: 5}})
	store.SetInsulinOnBoard(ctx, 2, []domain.InsulinValue{{Value: 2}})

	store.InvalidateUser(ctx, 1)

	_, ok := store.GetInsulinOnBoard(ctx, 1)
	assert.False(t, ok)
	_, ok = store.GetCarbsOnBoard(ctx, 1)
	assert.False(t, ok)

	_, ok = store.GetInsulinOnBoard(ctx, 2)
	assert.True(t, ok, "other users keep their timelines")
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.ttl = time.Millisecond

	store.SetInsulinOnBoard(ctx, 1, []domain.InsulinValue{{Value: 1}})
	time.Sleep(5 * time.Millisecond)

	_, ok := store.GetInsulinOnBoard(ctx, 1)
	assert.False(t, ok, "expired timelines are not served")
}
