package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

// storedSignal is the list element format. The recipient is implied by the key.
type storedSignal struct {
	From       domain.UserID     `json:"from"`
	Type       domain.SignalType `json:"type"`
	SDP        *string           `json:"sdp"`
	Candidate  *string           `json:"candidate"`
	ReceivedAt int64             `json:"received_at"`
}

// RedisMailboxStore keeps each mailbox as a list that expires after idleTTL
// without appends or drains, so PruneIdle has nothing to do.
type RedisMailboxStore struct {
	client  *redis.Client
	prefix  string
	idleTTL time.Duration
	logger  *zap.SugaredLogger
}

func NewRedisMailboxStore(client *redis.Client, prefix string, idleTTL time.Duration, logger *zap.SugaredLogger) ports.MailboxStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if idleTTL <= 0 {
		idleTTL = legacyMailboxTTL
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisMailboxStore{client: client, prefix: prefix, idleTTL: idleTTL, logger: logger}
}

func (s *RedisMailboxStore) key(id domain.UserID) string {
	return s.prefix + "mailbox:" + string(id)
}

func (s *RedisMailboxStore) Open(ctx context.Context, id domain.UserID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to reset mailbox in Redis: %w", err)
	}
	return nil
}

func encodeSignal(msg domain.SignalMessage) ([]byte, error) {
	data, err := json.Marshal(storedSignal{
		From:       msg.From,
		Type:       msg.Type,
		SDP:        msg.SDP,
		Candidate:  msg.Candidate,
		ReceivedAt: msg.ReceivedAt.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal: %w", err)
	}
	return data, nil
}

// decodeSignals turns list elements back into messages for id. Elements that
// do not decode are returned separately so the caller can report them.
func decodeSignals(id domain.UserID, raw []string) ([]domain.SignalMessage, []error) {
	out := make([]domain.SignalMessage, 0, len(raw))
	var bad []error
	for i, item := range raw {
		var st storedSignal
		if err := json.Unmarshal([]byte(item), &st); err != nil {
			bad = append(bad, fmt.Errorf("mailbox entry %d: %w", i, err))
			continue
		}
		out = append(out, domain.SignalMessage{
			From:       st.From,
			To:         id,
			Type:       st.Type,
			SDP:        st.SDP,
			Candidate:  st.Candidate,
			ReceivedAt: time.UnixMilli(st.ReceivedAt),
		})
	}
	return out, bad
}

func (s *RedisMailboxStore) Append(ctx context.Context, msg domain.SignalMessage) error {
	data, err := encodeSignal(msg)
	if err != nil {
		return err
	}

	key := s.key(msg.To)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.PExpire(ctx, key, s.idleTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append signal in Redis: %w", err)
	}
	return nil
}

// Drain reads and deletes the list in one MULTI block.
func (s *RedisMailboxStore) Drain(ctx context.Context, id domain.UserID) ([]domain.SignalMessage, error) {
	key := s.key(id)
	var rangeCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain mailbox in Redis: %w", err)
	}

	out, bad := decodeSignals(id, rangeCmd.Val())
	for _, err := range bad {
		s.logger.Warnw("dropping undecodable signal", "user_id", id, "error", err)
	}
	return out, nil
}

// Requeue pushes msgs back onto the head of the list in their original order.
func (s *RedisMailboxStore) Requeue(ctx context.Context, id domain.UserID, msgs []domain.SignalMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, len(msgs))
	for i, msg := range msgs {
		data, err := encodeSignal(msg)
		if err != nil {
			return err
		}
		// LPUSH inserts one by one, so the last value ends up first
		values[len(msgs)-1-i] = data
	}

	key := s.key(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, values...)
		pipe.PExpire(ctx, key, s.idleTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to requeue signals in Redis: %w", err)
	}
	return nil
}

func (s *RedisMailboxStore) Discard(ctx context.Context, id domain.UserID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to discard mailbox in Redis: %w", err)
	}
	return nil
}

func (s *RedisMailboxStore) PruneIdle(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}
