package memory

import (
	"context"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type mailbox struct {
	messages []domain.SignalMessage
	touched  time.Time
}

type mailboxShard struct {
	mu    sync.Mutex
	boxes map[domain.UserID]*mailbox
}

// MemoryMailboxStore keeps one FIFO per user. Append and Drain of the same
// mailbox run under the same shard lock, so a drain observes every append
// that completed before it.
type MemoryMailboxStore struct {
	shards []*mailboxShard
	now    func() time.Time
}

func NewMemoryMailboxStore(shards int, now func() time.Time) ports.MailboxStore {
	if now == nil {
		now = time.Now
	}
	n := normalizeShards(shards)
	s := &MemoryMailboxStore{shards: make([]*mailboxShard, n), now: now}
	for i := range s.shards {
		s.shards[i] = &mailboxShard{boxes: make(map[domain.UserID]*mailbox)}
	}
	return s
}

func (s *MemoryMailboxStore) shard(id domain.UserID) *mailboxShard {
	return s.shards[shardIndex(id, len(s.shards))]
}

// Open replaces any existing mailbox with an empty one.
func (s *MemoryMailboxStore) Open(ctx context.Context, id domain.UserID) error {
	sh := s.shard(id)
	sh.mu.Lock()
	sh.boxes[id] = &mailbox{touched: s.now()}
	sh.mu.Unlock()
	return nil
}

func (s *MemoryMailboxStore) Append(ctx context.Context, msg domain.SignalMessage) error {
	sh := s.shard(msg.To)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	box, ok := sh.boxes[msg.To]
	if !ok {
		box = &mailbox{}
		sh.boxes[msg.To] = box
	}
	box.messages = append(box.messages, msg)
	box.touched = s.now()
	return nil
}

// Drain detaches the queued messages and leaves an empty mailbox behind.
func (s *MemoryMailboxStore) Drain(ctx context.Context, id domain.UserID) ([]domain.SignalMessage, error) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	box, ok := sh.boxes[id]
	if !ok {
		return []domain.SignalMessage{}, nil
	}
	out := box.messages
	box.messages = nil
	box.touched = s.now()
	if out == nil {
		out = []domain.SignalMessage{}
	}
	return out, nil
}

// Requeue is a no-op once the mailbox has been discarded.
func (s *MemoryMailboxStore) Requeue(ctx context.Context, id domain.UserID, msgs []domain.SignalMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	box, ok := sh.boxes[id]
	if !ok {
		return nil
	}
	queued := make([]domain.SignalMessage, 0, len(msgs)+len(box.messages))
	queued = append(queued, msgs...)
	box.messages = append(queued, box.messages...)
	box.touched = s.now()
	return nil
}

func (s *MemoryMailboxStore) Discard(ctx context.Context, id domain.UserID) error {
	sh := s.shard(id)
	sh.mu.Lock()
	delete(sh.boxes, id)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryMailboxStore) PruneIdle(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, box := range sh.boxes {
			if !box.touched.After(cutoff) {
				delete(sh.boxes, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}
