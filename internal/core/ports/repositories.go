package ports

import (
	"context"
	"io"
	"time"

	"huddle/internal/core/domain"
)

type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	List(ctx context.Context) ([]*domain.Channel, error)
	Count(ctx context.Context) (int, error)
	// Delete removes the channel and all of its messages atomically.
	Delete(ctx context.Context, id domain.ChannelID) error
}

type MessageRepository interface {
	Save(ctx context.Context, msg *domain.Message) error
	// ListRecent returns at most limit messages, newest first.
	ListRecent(ctx context.Context, channelID domain.ChannelID, limit int) ([]*domain.Message, error)
	Delete(ctx context.Context, id domain.MessageID) error
}

// PresenceStore holds one entry per user. Implementations must be safe for
// concurrent use and must tolerate Remove while a Snapshot is being filtered.
type PresenceStore interface {
	Upsert(ctx context.Context, entry domain.PresenceEntry) error
	// Refresh bumps LastSeen of an existing entry and reports whether one existed.
	Refresh(ctx context.Context, id domain.UserID, seen time.Time) (bool, error)
	Remove(ctx context.Context, id domain.UserID) error
	Snapshot(ctx context.Context) ([]domain.PresenceEntry, error)
	// RemoveIfStale deletes the entry only if it was last seen at or before cutoff.
	RemoveIfStale(ctx context.Context, id domain.UserID, cutoff time.Time) (bool, error)
}

// MailboxStore keeps per-user FIFO queues of signals. Append and Drain on the
// same user must be linearizable.
type MailboxStore interface {
	Open(ctx context.Context, id domain.UserID) error
	Append(ctx context.Context, msg domain.SignalMessage) error
	Drain(ctx context.Context, id domain.UserID) ([]domain.SignalMessage, error)
	// Requeue puts drained but undelivered messages back in front of
	// anything appended since, keeping their order.
	Requeue(ctx context.Context, id domain.UserID, msgs []domain.SignalMessage) error
	Discard(ctx context.Context, id domain.UserID) error
	// PruneIdle drops mailboxes with no append or drain since cutoff.
	PruneIdle(ctx context.Context, cutoff time.Time) (int, error)
}

type MediaStore interface {
	Save(ctx context.Context, name string, data io.Reader) (*domain.Attachment, error)
	// Delete removes a stored attachment. Deleting a missing file is not an error.
	Delete(ctx context.Context, attachment *domain.Attachment) error
}
