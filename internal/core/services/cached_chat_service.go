package services

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/cache"
)

const channelListKey = "channels"

// channelRowLister is implemented by chat services that can list channel rows
// and count their users separately.
type channelRowLister interface {
	ListChannelRows(ctx context.Context) ([]*domain.Channel, error)
	SummarizeChannels(ctx context.Context, channels []*domain.Channel) ([]domain.ChannelSummary, error)
}

// CachedChatService caches channel rows in front of a ChatService. User counts
// and messages always go to the wrapped service.
type CachedChatService struct {
	ports.ChatService
	rows     channelRowLister
	channels *cache.Cache[*domain.Channel]
	list     *cache.Cache[[]*domain.Channel]
}

func NewCachedChatService(base ports.ChatService, channelTTL time.Duration, opts ...Option) *CachedChatService {
	o := buildOptions(opts)
	rows, _ := base.(channelRowLister)
	return &CachedChatService{
		ChatService: base,
		rows:        rows,
		channels:    cache.New[*domain.Channel](channelTTL, cache.WithClock[*domain.Channel](o.now)),
		list:        cache.New[[]*domain.Channel](channelTTL, cache.WithClock[[]*domain.Channel](o.now)),
	}
}

func channelKey(id domain.ChannelID) string {
	return fmt.Sprintf("channel:%s", id)
}

func (s *CachedChatService) EnsureDefaultChannel(ctx context.Context) error {
	err := s.ChatService.EnsureDefaultChannel(ctx)
	s.list.Invalidate(channelListKey)
	return err
}

func (s *CachedChatService) CreateChannel(ctx context.Context, name, icon, desc string) (*domain.Channel, error) {
	ch, err := s.ChatService.CreateChannel(ctx, name, icon, desc)
	if err != nil {
		return nil, err
	}
	s.channels.Set(channelKey(ch.ID), ch)
	s.list.Invalidate(channelListKey)
	return ch, nil
}

func (s *CachedChatService) GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	return s.channels.GetOrLoad(ctx, channelKey(id), func(ctx context.Context) (*domain.Channel, error) {
		return s.ChatService.GetChannel(ctx, id)
	})
}

func (s *CachedChatService) ChannelName(ctx context.Context, id domain.ChannelID) string {
	ch, err := s.GetChannel(ctx, id)
	if err != nil {
		return UnknownChannelName
	}
	return ch.Name
}

// ListChannels serves the rows from cache and counts users on every call.
func (s *CachedChatService) ListChannels(ctx context.Context) ([]domain.ChannelSummary, error) {
	if s.rows == nil {
		return s.ChatService.ListChannels(ctx)
	}
	channels, err := s.list.GetOrLoad(ctx, channelListKey, s.rows.ListChannelRows)
	if err != nil {
		return nil, err
	}
	return s.rows.SummarizeChannels(ctx, channels)
}

// DeleteChannel invalidates before and after the delete so a concurrent
// reader cannot repopulate the entry with the removed row.
func (s *CachedChatService) DeleteChannel(ctx context.Context, id domain.ChannelID) error {
	s.channels.Invalidate(channelKey(id))
	s.list.Invalidate(channelListKey)
	err := s.ChatService.DeleteChannel(ctx, id)
	s.channels.Invalidate(channelKey(id))
	s.list.Invalidate(channelListKey)
	return err
}

// Purge drops expired entries.
func (s *CachedChatService) Purge() int {
	return s.channels.Purge() + s.list.Purge()
}

func (s *CachedChatService) CacheStats() cache.Stats {
	rows, list := s.channels.Stats(), s.list.Stats()
	return cache.Stats{
		Size:   rows.Size + list.Size,
		Hits:   rows.Hits + list.Hits,
		Misses: rows.Misses + list.Misses,
	}
}
