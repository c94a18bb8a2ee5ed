package distributed

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

// Event is the wire form of a voice event on the bus.
type Event struct {
	Kind       domain.VoiceEventKind `json:"kind"`
	UserID     domain.UserID         `json:"user_id"`
	InstanceID string                `json:"instance_id"`
	Timestamp  time.Time             `json:"timestamp"`
}

// EventBus carries voice events between instances that share Redis
// mailboxes, so a signal queued on one instance wakes a push connection held
// by another.
type EventBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.SugaredLogger
}

var _ ports.VoiceEventPublisher = (*EventBus)(nil)

func NewEventBus(client *redis.Client, prefix, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		channel:    prefix + "voice:events",
		instanceID: instanceID,
		logger:     logger,
	}
}

func (eb *EventBus) Publish(ctx context.Context, evt domain.VoiceEvent) error {
	data, err := json.Marshal(Event{
		Kind:       evt.Kind,
		UserID:     evt.UserID,
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe calls handler for every event published by other instances until
// ctx is done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(domain.VoiceEvent)) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}
	eb.logger.Infow("subscribed to voice events", "channel", eb.channel, "instance_id", eb.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, own, err := eb.decode(msg.Payload)
			if err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			if own {
				continue
			}
			handler(evt)
		}
	}
}

func (eb *EventBus) decode(payload string) (domain.VoiceEvent, bool, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return domain.VoiceEvent{}, false, err
	}
	if e.UserID == "" {
		return domain.VoiceEvent{}, false, fmt.Errorf("event without user id")
	}
	return domain.VoiceEvent{Kind: e.Kind, UserID: e.UserID}, e.InstanceID == eb.instanceID, nil
}
