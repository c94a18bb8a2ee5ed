package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"huddle/internal/core/domain"
)

// newTestClient connects to HUDDLE_TEST_REDIS_ADDR and skips the test when it
// is unset. Every test gets its own key prefix.
func newTestClient(t *testing.T) (*redis.Client, string) {
	t.Helper()
	addr := os.Getenv("HUDDLE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HUDDLE_TEST_REDIS_ADDR not set")
	}

	prefix := fmt.Sprintf("huddle-test:%d:", time.Now().UnixNano())
	client, err := NewRedisClient(ClientOptions{Address: addr, PoolSize: 4, KeyPrefix: prefix}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		CloseRedisClient(client)
	})
	return client, prefix
}

func TestRedisPresenceStore(t *testing.T) {
	client, prefix := newTestClient(t)
	ctx := context.Background()
	store := NewRedisPresenceStore(client, prefix, "channel")
	t0 := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, store.Upsert(ctx, domain.PresenceEntry{UserID: "a", Nick: "alice", ChannelID: "c1", LastSeen: t0}))
	require.NoError(t, store.Upsert(ctx, domain.PresenceEntry{UserID: "a", Nick: "alice", ChannelID: "c2", LastSeen: t0.Add(-time.Second)}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, domain.ChannelID("c2"), snap[0].ChannelID)
	assert.True(t, snap[0].LastSeen.Equal(t0), "LastSeen never moves backwards")

	ok, err := store.Refresh(ctx, "ghost", t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Refresh(ctx, "a", t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := store.RemoveIfStale(ctx, "a", t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = store.RemoveIfStale(ctx, "a", t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, removed)

	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestRedisMailboxStore(t *testing.T) {
	client, prefix := newTestClient(t)
	ctx := context.Background()
	store := NewRedisMailboxStore(client, prefix, time.Minute, zaptest.NewLogger(t).Sugar())
	offer := "v=0"

	require.NoError(t, store.Open(ctx, "b"))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, domain.SignalMessage{
			From: domain.UserID(fmt.Sprintf("a%d", i)),
			To:   "b",
			Type: domain.SignalOffer,
			SDP:  &offer,
		}))
	}

	ttl, err := client.PTTL(ctx, prefix+"mailbox:b").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	msgs, err := store.Drain(ctx, "b")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.UserID("a0"), msgs[0].From)
	assert.Equal(t, domain.UserID("b"), msgs[0].To)
	assert.Nil(t, msgs[0].Candidate)

	msgs, err = store.Drain(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, store.Append(ctx, domain.SignalMessage{From: "a", To: "b", Type: domain.SignalOffer, SDP: &offer}))
	require.NoError(t, store.Discard(ctx, "b"))
	msgs, err = store.Drain(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRedisMailboxStore_Requeue(t *testing.T) {
	client, prefix := newTestClient(t)
	ctx := context.Background()
	store := NewRedisMailboxStore(client, prefix, time.Minute, zaptest.NewLogger(t).Sugar())
	cand := "candidate:1"

	for _, from := range []domain.UserID{"a0", "a1", "a2"} {
		require.NoError(t, store.Append(ctx, domain.SignalMessage{From: from, To: "b", Type: domain.SignalCandidate, Candidate: &cand}))
	}
	msgs, err := store.Drain(ctx, "b")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	require.NoError(t, store.Append(ctx, domain.SignalMessage{From: "late", To: "b", Type: domain.SignalCandidate, Candidate: &cand}))
	require.NoError(t, store.Requeue(ctx, "b", msgs[1:]))

	msgs, err = store.Drain(ctx, "b")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.UserID("a1"), msgs[0].From)
	assert.Equal(t, domain.UserID("a2"), msgs[1].From)
	assert.Equal(t, domain.UserID("late"), msgs[2].From)
}

func TestRedisMailboxStore_DrainLogsUndecodableEntries(t *testing.T) {
	client, prefix := newTestClient(t)
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	store := NewRedisMailboxStore(client, prefix, time.Minute, zap.New(core).Sugar())
	offer := "v=0"

	require.NoError(t, store.Append(ctx, domain.SignalMessage{From: "a", To: "b", Type: domain.SignalOffer, SDP: &offer}))
	require.NoError(t, client.RPush(ctx, prefix+"mailbox:b", "{not json").Err())

	msgs, err := store.Drain(ctx, "b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.UserID("a"), msgs[0].From)

	entries := logs.FilterMessage("dropping undecodable signal").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, "b", entries[0].ContextMap()["user_id"])
}
