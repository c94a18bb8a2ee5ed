package backup

import (
	"context"
	"testing"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/infrastructure/repositories/memory"
	"huddle/pkg/backup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func seedStore(t *testing.T, store *memory.MemoryChatStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Channels().Create(ctx, &domain.Channel{ID: "general", Name: "general", Icon: "💬", CreatedAt: base}))
	require.NoError(t, store.Channels().Create(ctx, &domain.Channel{ID: "random", Name: "random", Icon: "🎲", CreatedAt: base}))

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, store.Messages().Save(ctx, &domain.Message{
			ID:        domain.MessageID(text),
			ChannelID: "general",
			Nick:      "alice",
			Content:   text,
			OriginIP:  "10.0.0.1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestScheduler_RunOnceThenRestore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()

	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	service := backup.NewBackupService(storage, "test")

	source := memory.NewMemoryChatStore()
	seedStore(t, source)

	scheduler := NewScheduler(service, source.Channels(), source.Messages(), Config{
		Interval:           time.Hour,
		RetentionDays:      7,
		MessagesPerChannel: 2,
	}, logger)

	name, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	target := memory.NewMemoryChatStore()
	restore := NewRestoreService(service, target.Channels(), target.Messages(), logger)

	restored, err := restore.RestoreLatestIfEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, restored)

	count, err := target.Channels().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ch, err := target.Channels().GetByID(ctx, "random")
	require.NoError(t, err)
	assert.Equal(t, "🎲", ch.Icon)

	msgs, err := target.Messages().ListRecent(ctx, "general", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "third", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "10.0.0.1", msgs[0].OriginIP)

	restored, err = restore.RestoreLatestIfEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestRestoreService_NoBackups(t *testing.T) {
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	store := memory.NewMemoryChatStore()
	restore := NewRestoreService(backup.NewBackupService(storage, "test"), store.Channels(), store.Messages(), zaptest.NewLogger(t).Sugar())

	restored, err := restore.RestoreLatestIfEmpty(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)

	_, err = restore.FindBackupByTime(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestRestoreService_SkipsExistingChannels(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t).Sugar()
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	service := backup.NewBackupService(storage, "test")

	source := memory.NewMemoryChatStore()
	seedStore(t, source)
	name, err := NewScheduler(service, source.Channels(), source.Messages(), Config{Interval: time.Hour, MessagesPerChannel: 10}, logger).RunOnce(ctx)
	require.NoError(t, err)

	target := memory.NewMemoryChatStore()
	require.NoError(t, target.Channels().Create(ctx, &domain.Channel{ID: "general", Name: "kept", Icon: "💬"}))

	restore := NewRestoreService(service, target.Channels(), target.Messages(), logger)
	require.NoError(t, restore.RestoreFromBackup(ctx, name, DefaultRestoreOptions()))

	ch, err := target.Channels().GetByID(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "kept", ch.Name)

	msgs, err := target.Messages().ListRecent(ctx, "general", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = target.Channels().GetByID(ctx, "random")
	assert.NoError(t, err)
}
