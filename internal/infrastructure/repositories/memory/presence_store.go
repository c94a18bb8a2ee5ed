package memory

import (
	"context"
	"sync"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type presenceShard struct {
	mu      sync.RWMutex
	entries map[domain.UserID]domain.PresenceEntry
}

// MemoryPresenceStore is a sharded map of presence entries. Operations on
// different users only contend when they hash to the same shard.
type MemoryPresenceStore struct {
	shards []*presenceShard
}

func NewMemoryPresenceStore(shards int) ports.PresenceStore {
	n := normalizeShards(shards)
	s := &MemoryPresenceStore{shards: make([]*presenceShard, n)}
	for i := range s.shards {
		s.shards[i] = &presenceShard{entries: make(map[domain.UserID]domain.PresenceEntry)}
	}
	return s
}

func (s *MemoryPresenceStore) shard(id domain.UserID) *presenceShard {
	return s.shards[shardIndex(id, len(s.shards))]
}

func (s *MemoryPresenceStore) Upsert(ctx context.Context, entry domain.PresenceEntry) error {
	sh := s.shard(entry.UserID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// LastSeen never moves backwards.
	if prev, ok := sh.entries[entry.UserID]; ok && prev.LastSeen.After(entry.LastSeen) {
		entry.LastSeen = prev.LastSeen
	}
	sh.entries[entry.UserID] = entry
	return nil
}

func (s *MemoryPresenceStore) Refresh(ctx context.Context, id domain.UserID, seen time.Time) (bool, error) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[id]
	if !ok {
		return false, nil
	}
	if seen.After(entry.LastSeen) {
		entry.LastSeen = seen
		sh.entries[id] = entry
	}
	return true, nil
}

func (s *MemoryPresenceStore) Remove(ctx context.Context, id domain.UserID) error {
	sh := s.shard(id)
	sh.mu.Lock()
	delete(sh.entries, id)
	sh.mu.Unlock()
	return nil
}

// Snapshot copies every entry, one shard at a time.
func (s *MemoryPresenceStore) Snapshot(ctx context.Context) ([]domain.PresenceEntry, error) {
	var out []domain.PresenceEntry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			out = append(out, e)
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

func (s *MemoryPresenceStore) RemoveIfStale(ctx context.Context, id domain.UserID, cutoff time.Time) (bool, error) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[id]
	if !ok || entry.LastSeen.After(cutoff) {
		return false, nil
	}
	delete(sh.entries, id)
	return true, nil
}
