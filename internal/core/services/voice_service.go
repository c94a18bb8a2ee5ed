package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type voiceService struct {
	presence  ports.PresenceRegistry
	mailboxes ports.MailboxStore
	notifier  *notifier
	events    ports.VoiceEventPublisher
	idleTTL   time.Duration
	metrics   *MetricsService
	logger    *zap.SugaredLogger
}

// NewVoiceService relays signaling between members of the global voice room.
// presence must be a registry separate from channel presence.
func NewVoiceService(
	presence ports.PresenceRegistry,
	mailboxes ports.MailboxStore,
	mailboxIdleTTL time.Duration,
	metrics *MetricsService,
	logger *zap.SugaredLogger,
	opts ...Option,
) ports.VoiceService {
	o := buildOptions(opts)
	return &voiceService{
		presence:  presence,
		mailboxes: mailboxes,
		notifier:  newNotifier(),
		events:    o.events,
		idleTTL:   mailboxIdleTTL,
		metrics:   metrics,
		logger:    logger,
	}
}

// Join returns the other active participants. The caller is expected to
// offer to each of them; existing members are not told about the newcomer.
func (s *voiceService) Join(ctx context.Context, who domain.Participant) ([]domain.Participant, error) {
	if who.ID == "" {
		return nil, domain.ErrInvalidUserID
	}

	if err := s.mailboxes.Open(ctx, who.ID); err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}
	if err := s.presence.Touch(ctx, who, domain.VoiceRoom); err != nil {
		return nil, fmt.Errorf("touch voice presence: %w", err)
	}

	active, err := s.presence.Active(ctx, domain.VoiceRoom, s.presence.Now())
	if err != nil {
		return nil, err
	}

	peers := make([]domain.Participant, 0, len(active))
	for _, e := range active {
		if e.UserID == who.ID {
			continue
		}
		peers = append(peers, e.Participant())
	}

	s.metrics.VoiceJoined()
	s.logger.Infow("voice participant joined",
		"user_id", who.ID,
		"nick", who.Nick,
		"peers", len(peers),
	)
	return peers, nil
}

// Poll refreshes the caller's liveness and drains its mailbox. Polling after
// Leave, or after the caller was swept, does not bring it back into the room;
// active reports whether it is still there.
func (s *voiceService) Poll(ctx context.Context, id domain.UserID) ([]domain.SignalMessage, bool, error) {
	if id == "" {
		return nil, false, domain.ErrInvalidUserID
	}

	active, err := s.presence.Refresh(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("refresh voice presence: %w", err)
	}

	msgs, err := s.mailboxes.Drain(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("drain mailbox: %w", err)
	}

	s.metrics.Polled(len(msgs))
	return msgs, active, nil
}

func (s *voiceService) Requeue(ctx context.Context, id domain.UserID, msgs []domain.SignalMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := s.mailboxes.Requeue(ctx, id, msgs); err != nil {
		return fmt.Errorf("requeue signals: %w", err)
	}
	s.logger.Debugw("signals requeued", "user_id", id, "count", len(msgs))
	return nil
}

func (s *voiceService) Signal(ctx context.Context, msg domain.SignalMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.presence.Now()
	}

	if err := s.mailboxes.Append(ctx, msg); err != nil {
		return fmt.Errorf("append to mailbox: %w", err)
	}
	s.notifier.Notify(msg.To)
	s.publish(ctx, domain.VoiceEvent{Kind: domain.VoiceEventSignalQueued, UserID: msg.To})

	s.metrics.SignalRelayed(msg.Type)
	s.logger.Debugw("signal queued",
		"from", msg.From,
		"to", msg.To,
		"type", msg.Type,
	)
	return nil
}

// Leave drops presence and any undelivered signals.
func (s *voiceService) Leave(ctx context.Context, id domain.UserID) error {
	if id == "" {
		return domain.ErrInvalidUserID
	}

	if err := s.presence.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove voice presence: %w", err)
	}
	if err := s.mailboxes.Discard(ctx, id); err != nil {
		return fmt.Errorf("discard mailbox: %w", err)
	}
	s.notifier.Evict(id)
	s.publish(ctx, domain.VoiceEvent{Kind: domain.VoiceEventLeft, UserID: id})

	s.metrics.VoiceLeft()
	s.logger.Infow("voice participant left", "user_id", id)
	return nil
}

func (s *voiceService) Subscribe(id domain.UserID) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(id)
}

func (s *voiceService) Sweep(ctx context.Context) error {
	now := s.presence.Now()
	if _, err := s.presence.Sweep(ctx, now); err != nil {
		return err
	}

	pruned, err := s.mailboxes.PruneIdle(ctx, now.Add(-s.idleTTL))
	if err != nil {
		return fmt.Errorf("prune mailboxes: %w", err)
	}
	if pruned > 0 {
		s.logger.Debugw("idle mailboxes pruned", "count", pruned)
	}
	return nil
}

func (s *voiceService) ApplyEvent(evt domain.VoiceEvent) {
	switch evt.Kind {
	case domain.VoiceEventSignalQueued:
		s.notifier.Notify(evt.UserID)
	case domain.VoiceEventLeft:
		s.notifier.Evict(evt.UserID)
	}
}

// publish is best effort. Remote push clients also drain on every ping.
func (s *voiceService) publish(ctx context.Context, evt domain.VoiceEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warnw("failed to publish voice event",
			"kind", evt.Kind,
			"user_id", evt.UserID,
			"error", err,
		)
	}
}
