package memory

import (
	"context"
	"sort"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// MemoryChatStore holds channels and messages behind one mutex, mirroring the
// serialized access of the SQLite store. Channels and Messages expose it
// through the repository ports.
type MemoryChatStore struct {
	mu       sync.Mutex
	channels map[domain.ChannelID]*domain.Channel
	messages map[domain.ChannelID][]*domain.Message
	index    map[domain.MessageID]domain.ChannelID
}

func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{
		channels: make(map[domain.ChannelID]*domain.Channel),
		messages: make(map[domain.ChannelID][]*domain.Message),
		index:    make(map[domain.MessageID]domain.ChannelID),
	}
}

func (s *MemoryChatStore) Channels() ports.ChannelRepository {
	return channelRepository{s}
}

func (s *MemoryChatStore) Messages() ports.MessageRepository {
	return messageRepository{s}
}

type channelRepository struct{ s *MemoryChatStore }

type messageRepository struct{ s *MemoryChatStore }

func (r channelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *channel
	s.channels[c.ID] = &c
	return nil
}

func (r channelRepository) GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	cp := *c
	return &cp, nil
}

// List returns channels in creation order.
func (r channelRepository) List(ctx context.Context) ([]*domain.Channel, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		cp := *c
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r channelRepository) Count(ctx context.Context) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels), nil
}

// Delete drops the channel's messages, then the channel.
func (r channelRepository) Delete(ctx context.Context, id domain.ChannelID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages[id] {
		delete(s.index, m.ID)
	}
	delete(s.messages, id)
	delete(s.channels, id)
	return nil
}

func (r messageRepository) Save(ctx context.Context, msg *domain.Message) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[msg.ChannelID]; !ok {
		return domain.ErrChannelNotFound
	}
	m := *msg
	s.messages[m.ChannelID] = append(s.messages[m.ChannelID], &m)
	s.index[m.ID] = m.ChannelID
	return nil
}

func (r messageRepository) ListRecent(ctx context.Context, channelID domain.ChannelID, limit int) ([]*domain.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[channelID]
	if limit <= 0 {
		return []*domain.Message{}, nil
	}
	out := make([]*domain.Message, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r messageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	channelID, ok := s.index[id]
	if !ok {
		return nil
	}
	delete(s.index, id)
	msgs := s.messages[channelID]
	for i, m := range msgs {
		if m.ID == id {
			s.messages[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			break
		}
	}
	return nil
}
