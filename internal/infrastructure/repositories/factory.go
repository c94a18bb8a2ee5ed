package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/distributed"
	"huddle/internal/infrastructure/repositories/memory"
	redisrepo "huddle/internal/infrastructure/repositories/redis"
	"huddle/internal/infrastructure/repositories/sqlite"
	"huddle/pkg/config"
	lockpkg "huddle/pkg/distributed"
)

// RepositoryFactory creates presence, mailbox and chat stores with fallback
// to memory when Redis is unreachable.
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	sqliteStore *sqlite.Store
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:      cfg,
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(redisrepo.ClientOptions{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis for presence and mailboxes")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory presence and mailboxes")
	}

	return factory, nil
}

// CreatePresenceStore returns the store for one presence registry. namespace
// keeps channel and voice presence apart in Redis.
func (f *RepositoryFactory) CreatePresenceStore(namespace string) ports.PresenceStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisPresenceStore(f.redisClient, f.cfg.Redis.KeyPrefix, namespace)
	}
	return memory.NewMemoryPresenceStore(f.cfg.Presence.Shards)
}

func (f *RepositoryFactory) CreateMailboxStore(now func() time.Time) ports.MailboxStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisMailboxStore(f.redisClient, f.cfg.Redis.KeyPrefix, f.cfg.Voice.MailboxIdleTTL, f.logger)
	}
	return memory.NewMemoryMailboxStore(f.cfg.Presence.Shards, now)
}

// CreateEventBus returns the cross-instance voice event bus, or nil when
// presence and mailboxes are local to this process.
func (f *RepositoryFactory) CreateEventBus(instanceID string) *distributed.EventBus {
	if !f.useRedis || f.redisClient == nil {
		return nil
	}
	return distributed.NewEventBus(f.redisClient, f.cfg.Redis.KeyPrefix, instanceID, f.logger)
}

// LockManager returns a Redis lock manager, or nil without Redis.
func (f *RepositoryFactory) LockManager() *lockpkg.LockManager {
	if !f.useRedis || f.redisClient == nil {
		return nil
	}
	return lockpkg.NewLockManager(f.redisClient, f.cfg.Redis.KeyPrefix+"lock:")
}

// CreateChatStore opens the configured channel/message store.
func (f *RepositoryFactory) CreateChatStore(ctx context.Context) (ports.ChannelRepository, ports.MessageRepository, error) {
	switch f.cfg.Storage.Driver {
	case "memory":
		f.logger.Info("using memory chat store")
		s := memory.NewMemoryChatStore()
		return s.Channels(), s.Messages(), nil
	case "sqlite", "":
		s, err := sqlite.Open(ctx, f.cfg.Storage.SQLitePath, f.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open chat store: %w", err)
		}
		f.sqliteStore = s
		return s.Channels(), s.Messages(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", f.cfg.Storage.Driver)
	}
}

func (f *RepositoryFactory) Close() error {
	var firstErr error
	if f.sqliteStore != nil {
		firstErr = f.sqliteStore.Close()
	}
	if f.redisClient != nil {
		if err := redisrepo.CloseRedisClient(f.redisClient); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HealthCheck pings whichever backends are in use.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if f.sqliteStore != nil {
		if err := f.sqliteStore.Ping(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	return nil
}
