package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	apperrors "huddle/pkg/errors"
)

func TestChatService_EnsureDefaultChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.chat.EnsureDefaultChannel(ctx))
	require.NoError(t, f.chat.EnsureDefaultChannel(ctx))

	list, err := f.chat.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "General", list[0].Name)
	assert.Equal(t, domain.DefaultChannelIcon, list[0].Icon)
	assert.Equal(t, "General chat", list[0].Desc)
}

func assertAppCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr, "expected an application error, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestChatService_CreateChannelValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.chat.CreateChannel(ctx, "   ", "", "")
	assertAppCode(t, err, apperrors.ErrCodeInvalidInput)

	_, err = f.chat.CreateChannel(ctx, strings.Repeat("x", 51), "", "")
	assertAppCode(t, err, apperrors.ErrCodeInvalidInput)

	n, err := f.store.Channels().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChatService_ListChannelsCountsActiveUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.chat.CreateChannel(ctx, "a", "🎮", "games")
	require.NoError(t, err)
	b, err := f.chat.CreateChannel(ctx, "b", "", "")
	require.NoError(t, err)

	_, err = f.chat.ListMessages(ctx, a.ID, &domain.Participant{ID: "u1", Nick: "alice"})
	require.NoError(t, err)
	_, err = f.chat.ListMessages(ctx, a.ID, &domain.Participant{ID: "u2", Nick: "bob"})
	require.NoError(t, err)
	_, err = f.chat.ListMessages(ctx, b.ID, nil)
	require.NoError(t, err)

	counts := func() map[domain.ChannelID]int {
		list, err := f.chat.ListChannels(ctx)
		require.NoError(t, err)
		out := make(map[domain.ChannelID]int)
		for _, s := range list {
			out[s.ID] = s.UserCount
		}
		return out
	}

	got := counts()
	assert.Equal(t, 2, got[a.ID])
	assert.Equal(t, 0, got[b.ID])

	f.clock.Advance(16 * time.Second)
	got = counts()
	assert.Equal(t, 0, got[a.ID])
}

func TestChatService_PostAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, err := f.chat.CreateChannel(ctx, "general", "", "")
	require.NoError(t, err)

	author := domain.Participant{ID: "u1", Nick: "alice"}
	for i := 0; i < 3; i++ {
		_, err := f.chat.PostMessage(ctx, ports.PostMessageRequest{
			ChannelID: ch.ID,
			Author:    author,
			Text:      fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	msgs, err := f.chat.ListMessages(ctx, ch.ID, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "<p>msg 0</p>", msgs[0].Content)
	assert.Equal(t, "<p>msg 2</p>", msgs[2].Content)
	assert.Equal(t, "alice", msgs[0].Nick)
	assert.Equal(t, "0.0.0.0", msgs[0].OriginIP)

	n, err := f.channel.CountActive(ctx, ch.ID, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "posting counts as presence")
}

func TestChatService_HistoryLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, err := f.chat.CreateChannel(ctx, "busy", "", "")
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		_, err := f.chat.PostMessage(ctx, ports.PostMessageRequest{
			ChannelID: ch.ID,
			Author:    domain.Participant{ID: "u1", Nick: "alice"},
			Text:      fmt.Sprintf("m%d", i),
		})
		require.NoError(t, err)
	}

	msgs, err := f.chat.ListMessages(ctx, ch.ID, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	assert.Equal(t, "<p>m10</p>", msgs[0].Content)
	assert.Equal(t, "<p>m59</p>", msgs[49].Content)
}

func TestChatService_PostMessageErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, err := f.chat.CreateChannel(ctx, "general", "", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		req    ports.PostMessageRequest
		status int
	}{
		{
			name:   "empty message",
			req:    ports.PostMessageRequest{ChannelID: ch.ID, Author: domain.Participant{ID: "u1", Nick: "a"}, Text: "  "},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing nick",
			req:    ports.PostMessageRequest{ChannelID: ch.ID, Author: domain.Participant{ID: "u1"}, Text: "hi"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown channel",
			req:    ports.PostMessageRequest{ChannelID: "missing", Author: domain.Participant{ID: "u1", Nick: "a"}, Text: "hi"},
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.chat.PostMessage(ctx, tt.req)
			appErr := apperrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
		})
	}
}

func TestChatService_AttachmentOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, err := f.chat.CreateChannel(ctx, "media", "", "")
	require.NoError(t, err)

	msg, err := f.chat.PostMessage(ctx, ports.PostMessageRequest{
		ChannelID:  ch.ID,
		Author:     domain.Participant{ID: "u1", Nick: "alice"},
		Attachment: &domain.Attachment{Name: "cat.png", URL: "/uploads/x.png"},
		OriginIP:   "10.0.0.1",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.Content, `<img src="/uploads/x.png"`)
	assert.Equal(t, "10.0.0.1", msg.OriginIP)
}

func TestChatService_DeleteChannelCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, err := f.chat.CreateChannel(ctx, "temp", "", "")
	require.NoError(t, err)

	_, err = f.chat.PostMessage(ctx, ports.PostMessageRequest{
		ChannelID: ch.ID,
		Author:    domain.Participant{ID: "u1", Nick: "alice"},
		Text:      "bye",
	})
	require.NoError(t, err)

	require.NoError(t, f.chat.DeleteChannel(ctx, ch.ID))

	msgs, err := f.chat.ListMessages(ctx, ch.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, UnknownChannelName, f.chat.ChannelName(ctx, ch.ID))

	// deleting again is not an error
	assert.NoError(t, f.chat.DeleteChannel(ctx, ch.ID))
}

func TestChatService_DeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, err := f.chat.CreateChannel(ctx, "general", "", "")
	require.NoError(t, err)

	msg, err := f.chat.PostMessage(ctx, ports.PostMessageRequest{
		ChannelID: ch.ID,
		Author:    domain.Participant{ID: "u1", Nick: "alice"},
		Text:      "oops",
	})
	require.NoError(t, err)

	require.NoError(t, f.chat.DeleteMessage(ctx, msg.ID))
	require.NoError(t, f.chat.DeleteMessage(ctx, msg.ID))

	msgs, err := f.chat.ListMessages(ctx, ch.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCachedChatService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cached := NewCachedChatService(f.chat, time.Minute, WithClock(f.clock.Now))

	ch, err := cached.CreateChannel(ctx, "cached", "", "")
	require.NoError(t, err)

	assert.Equal(t, "cached", cached.ChannelName(ctx, ch.ID))
	assert.Equal(t, "cached", cached.ChannelName(ctx, ch.ID))
	assert.GreaterOrEqual(t, cached.CacheStats().Hits, uint64(2))

	require.NoError(t, cached.DeleteChannel(ctx, ch.ID))
	assert.Equal(t, UnknownChannelName, cached.ChannelName(ctx, ch.ID))

	f.clock.Advance(2 * time.Minute)
	assert.Zero(t, cached.Purge())
}

func TestCachedChatService_ListChannelsCachesRowsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cached := NewCachedChatService(f.chat, time.Minute, WithClock(f.clock.Now))

	ch, err := cached.CreateChannel(ctx, "cached", "", "")
	require.NoError(t, err)

	list, err := cached.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].UserCount)
	misses := cached.CacheStats().Misses

	_, err = cached.ListMessages(ctx, ch.ID, &domain.Participant{ID: "u1", Nick: "ann"})
	require.NoError(t, err)

	list, err = cached.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UserCount)
	assert.Equal(t, misses, cached.CacheStats().Misses, "rows came from cache")

	require.NoError(t, cached.DeleteChannel(ctx, ch.ID))
	list, err = cached.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
