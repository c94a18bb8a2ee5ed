package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// Each registry keeps two hashes keyed by user id: one with the entry's nick
// and channel, one with LastSeen in unix milliseconds. Keeping LastSeen as a
// bare integer lets the scripts below compare it atomically.

var upsertPresence = redis.NewScript(`
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local cur = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if tonumber(ARGV[3]) > cur then
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
end
return 1
`)

var refreshPresence = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local cur = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if tonumber(ARGV[2]) > cur then
  redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
end
return 1
`)

var removeStalePresence = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if not cur or tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

type presenceMeta struct {
	Nick      string           `json:"nick"`
	ChannelID domain.ChannelID `json:"channel_id"`
}

type RedisPresenceStore struct {
	client  *redis.Client
	metaKey string
	seenKey string
}

// NewRedisPresenceStore stores one registry under prefix+"presence:"+namespace.
// Channel and voice presence must use different namespaces.
func NewRedisPresenceStore(client *redis.Client, prefix, namespace string) ports.PresenceStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	base := fmt.Sprintf("%spresence:%s", prefix, namespace)
	return &RedisPresenceStore{
		client:  client,
		metaKey: base + ":meta",
		seenKey: base + ":seen",
	}
}

func (s *RedisPresenceStore) keys() []string {
	return []string{s.metaKey, s.seenKey}
}

func (s *RedisPresenceStore) Upsert(ctx context.Context, entry domain.PresenceEntry) error {
	meta, err := json.Marshal(presenceMeta{Nick: entry.Nick, ChannelID: entry.ChannelID})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	err = upsertPresence.Run(ctx, s.client, s.keys(), string(entry.UserID), meta, entry.LastSeen.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("failed to upsert presence in Redis: %w", err)
	}
	return nil
}

func (s *RedisPresenceStore) Refresh(ctx context.Context, id domain.UserID, seen time.Time) (bool, error) {
	n, err := refreshPresence.Run(ctx, s.client, s.keys(), string(id), seen.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh presence in Redis: %w", err)
	}
	return n == 1, nil
}

func (s *RedisPresenceStore) Remove(ctx context.Context, id domain.UserID) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.metaKey, string(id))
		pipe.HDel(ctx, s.seenKey, string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove presence from Redis: %w", err)
	}
	return nil
}

func (s *RedisPresenceStore) Snapshot(ctx context.Context) ([]domain.PresenceEntry, error) {
	var metaCmd, seenCmd *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, s.metaKey)
		seenCmd = pipe.HGetAll(ctx, s.seenKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read presence from Redis: %w", err)
	}

	seen := seenCmd.Val()
	out := make([]domain.PresenceEntry, 0, len(metaCmd.Val()))
	for id, raw := range metaCmd.Val() {
		var meta presenceMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			// Skip entries that can't be decoded
			continue
		}
		ms, ok := seen[id]
		if !ok {
			continue
		}
		last, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PresenceEntry{
			UserID:    domain.UserID(id),
			Nick:      meta.Nick,
			ChannelID: meta.ChannelID,
			LastSeen:  time.UnixMilli(last),
		})
	}
	return out, nil
}

func (s *RedisPresenceStore) RemoveIfStale(ctx context.Context, id domain.UserID, cutoff time.Time) (bool, error) {
	n, err := removeStalePresence.Run(ctx, s.client, s.keys(), string(id), cutoff.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to expire presence in Redis: %w", err)
	}
	return n == 1, nil
}
