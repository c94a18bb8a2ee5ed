package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/tracing"
)

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS channels (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		icon        TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		nick       TEXT NOT NULL,
		content    TEXT NOT NULL,
		origin_ip  TEXT NOT NULL DEFAULT '0.0.0.0',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel_time ON messages(channel_id, created_at)`,
}

// Store is the SQLite chat store. Writes and reads are serialized by one
// mutex; channel deletion removes messages and the channel in one transaction.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range append(pragmas, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("sqlite store ready", "path", path)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Channels() ports.ChannelRepository {
	return channelRepository{s}
}

func (s *Store) Messages() ports.MessageRepository {
	return messageRepository{s}
}

type channelRepository struct{ s *Store }

type messageRepository struct{ s *Store }

func (r channelRepository) Create(ctx context.Context, ch *domain.Channel) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "insert", "channels")
	defer span.End()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO channels (id, name, icon, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(ch.ID), ch.Name, ch.Icon, ch.Description, ch.CreatedAt.UnixMilli(),
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (r channelRepository) GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "select", "channels")
	defer span.End()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := r.s.db.QueryRowContext(ctx,
		`SELECT id, name, icon, description, created_at FROM channels WHERE id = ?`, string(id))
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("select channel: %w", err)
	}
	return ch, nil
}

func (r channelRepository) List(ctx context.Context) ([]*domain.Channel, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "select", "channels")
	defer span.End()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.db.QueryContext(ctx,
		`SELECT id, name, icon, description, created_at FROM channels ORDER BY created_at, rowid`)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	out := []*domain.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (r channelRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int
	if err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count channels: %w", err)
	}
	return n, nil
}

func (r channelRepository) Delete(ctx context.Context, id domain.ChannelID) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "delete", "channels")
	defer span.End()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete channel: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, string(id)); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("delete channel messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, string(id)); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("delete channel: %w", err)
	}
	return tx.Commit()
}

func (r messageRepository) Save(ctx context.Context, msg *domain.Message) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "insert", "messages")
	defer span.End()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var exists int
	err := r.s.db.QueryRowContext(ctx, `SELECT 1 FROM channels WHERE id = ?`, string(msg.ChannelID)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrChannelNotFound
	}
	if err != nil {
		return fmt.Errorf("check channel: %w", err)
	}

	_, err = r.s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, nick, content, origin_ip, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.ChannelID), msg.Nick, msg.Content, msg.OriginIP, msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r messageRepository) ListRecent(ctx context.Context, channelID domain.ChannelID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}

	ctx, span := tracing.TraceStoreOperation(ctx, "select", "messages")
	defer span.End()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.db.QueryContext(ctx,
		`SELECT id, channel_id, nick, content, origin_ip, created_at
		   FROM messages WHERE channel_id = ?
		  ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		string(channelID), limit,
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []*domain.Message{}
	for rows.Next() {
		var (
			m  domain.Message
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Nick, &m.Content, &m.OriginIP, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r messageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "delete", "messages")
	defer span.End()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, err := r.s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, string(id)); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*domain.Channel, error) {
	var (
		ch domain.Channel
		ts int64
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Icon, &ch.Description, &ts); err != nil {
		return nil, err
	}
	ch.CreatedAt = time.UnixMilli(ts)
	return &ch, nil
}
