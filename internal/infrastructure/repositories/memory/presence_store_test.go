package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/core/domain"
)

func TestMemoryPresenceStore_UpsertAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPresenceStore(4)
	t0 := time.Unix(100, 0)

	require.NoError(t, store.Upsert(ctx, domain.PresenceEntry{UserID: "a", Nick: "alice", ChannelID: "c1", LastSeen: t0}))
	require.NoError(t, store.Upsert(ctx, domain.PresenceEntry{UserID: "a", Nick: "alice", ChannelID: "c2", LastSeen: t0.Add(time.Second)}))
	require.NoError(t, store.Upsert(ctx, domain.PresenceEntry{UserID: "b", Nick: "bob", ChannelID: "c1", LastSeen: t0}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2, "a user has at most one entry")

	byID := map[domain.UserID]domain.PresenceEntry{}
	for _, e := range snap {
		byID[e.UserID] = e
	}
	assert.Equal(t, domain.ChannelID("c2"), byID["a"].ChannelID)
}

func TestMemoryPresenceStore_LastSeenIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPresenceStore(1)
	t0 := time.Unix(100, 0)

	require.NoError(t, store.Upsert(ctx, domain.PresenceEntry{UserID: "a", ChannelID: "c", LastSeen: t0}))
	require.NoError(t, store.Upsert(ctx, domain.PresenceEntry{UserID: "a", ChannelID: "c", LastSeen: t0.Add(-time.Minute)}))

	ok, err := store.Refresh(ctx, "a", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	snap, _ := store.Snapshot(ctx)
	require.Len(t, snap, 1)
	assert.Equal(t, t0, snap[0].LastSeen)
}

func TestMemoryPresenceStore_RefreshUnknown(t *testing.T) {
	ok, err := NewMemoryPresenceStore(0).Refresh(context.Background(), "ghost", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryPresenceStore_RemoveIfStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPresenceStore(8)
	t0 := time.Unix(100, 0)
	_ = store.Upsert(ctx, domain.PresenceEntry{UserID: "a", LastSeen: t0})

	removed, err := store.RemoveIfStale(ctx, "a", t0.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, removed, "entry newer than cutoff stays")

	removed, err = store.RemoveIfStale(ctx, "a", t0)
	require.NoError(t, err)
	assert.True(t, removed)

	assert.NoError(t, store.Remove(ctx, "a"), "removing an absent user is a no-op")
}

func TestMemoryPresenceStore_ConcurrentTouchAndSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPresenceStore(16)
	t0 := time.Unix(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := domain.UserID(fmt.Sprintf("u%d", i))
			for j := 0; j < 20; j++ {
				_ = store.Upsert(ctx, domain.PresenceEntry{UserID: id, ChannelID: "c", LastSeen: t0.Add(time.Duration(j) * time.Second)})
			}
		}(i)
		go func() {
			defer wg.Done()
			snap, _ := store.Snapshot(ctx)
			for _, e := range snap {
				_, _ = store.RemoveIfStale(ctx, e.UserID, t0.Add(5*time.Second))
			}
		}()
	}
	wg.Wait()

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	for _, e := range snap {
		assert.Equal(t, t0.Add(19*time.Second), e.LastSeen)
	}
}

func TestNormalizeShards(t *testing.T) {
	assert.Equal(t, defaultShards, normalizeShards(0))
	assert.Equal(t, 1, normalizeShards(1))
	assert.Equal(t, 16, normalizeShards(12))
	assert.Equal(t, 32, normalizeShards(32))
}
