package ports

import (
	"context"
	"time"

	"huddle/internal/core/domain"
)

type PresenceRegistry interface {
	Touch(ctx context.Context, who domain.Participant, channelID domain.ChannelID) error
	Refresh(ctx context.Context, id domain.UserID) (bool, error)
	CountActive(ctx context.Context, channelID domain.ChannelID, now time.Time) (int, error)
	Active(ctx context.Context, channelID domain.ChannelID, now time.Time) ([]domain.PresenceEntry, error)
	Remove(ctx context.Context, id domain.UserID) error
	Sweep(ctx context.Context, now time.Time) (int, error)
	Now() time.Time
}

type VoiceService interface {
	Join(ctx context.Context, who domain.Participant) ([]domain.Participant, error)
	// Poll drains the caller's mailbox. active is false once the caller is
	// no longer in the voice room, whether it left or was swept as stale.
	Poll(ctx context.Context, id domain.UserID) (msgs []domain.SignalMessage, active bool, err error)
	// Requeue returns polled messages that could not be delivered.
	Requeue(ctx context.Context, id domain.UserID, msgs []domain.SignalMessage) error
	Signal(ctx context.Context, msg domain.SignalMessage) error
	Leave(ctx context.Context, id domain.UserID) error
	// Subscribe returns a channel that receives a value whenever a signal
	// is queued for id. The cancel func must be called to release it.
	Subscribe(id domain.UserID) (<-chan struct{}, func())
	// Sweep expires stale voice presence and prunes idle mailboxes.
	Sweep(ctx context.Context) error
	// ApplyEvent replays a wake-up or leave published by another instance
	// onto local push subscribers.
	ApplyEvent(evt domain.VoiceEvent)
}

// VoiceEventPublisher fans voice events out to other instances.
type VoiceEventPublisher interface {
	Publish(ctx context.Context, evt domain.VoiceEvent) error
}

type PostMessageRequest struct {
	ChannelID  domain.ChannelID
	Author     domain.Participant
	Text       string
	Attachment *domain.Attachment
	OriginIP   string
}

type ChatService interface {
	EnsureDefaultChannel(ctx context.Context) error
	CreateChannel(ctx context.Context, name, icon, desc string) (*domain.Channel, error)
	GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	ChannelName(ctx context.Context, id domain.ChannelID) string
	DeleteChannel(ctx context.Context, id domain.ChannelID) error
	ListChannels(ctx context.Context) ([]domain.ChannelSummary, error)
	PostMessage(ctx context.Context, req PostMessageRequest) (*domain.Message, error)
	// ListMessages returns the latest messages oldest first. A non-nil viewer
	// counts as a presence heartbeat in that channel.
	ListMessages(ctx context.Context, channelID domain.ChannelID, viewer *domain.Participant) ([]*domain.Message, error)
	DeleteMessage(ctx context.Context, id domain.MessageID) error
}

type SessionService interface {
	Issue(nick string) (*domain.Session, error)
	Resolve(token string) (domain.Participant, error)
}

// MetricsSink receives service events for export.
type MetricsSink interface {
	SetActiveUsers(registry string, n int)
	RecordPresenceExpired(registry string, n int)
	RecordVoiceJoin()
	RecordVoiceLeave()
	RecordSignal(signalType domain.SignalType)
	RecordPoll(delivered int)
	RecordMessagePosted(withAttachment bool)
	RecordChannelChange(op string)
}
