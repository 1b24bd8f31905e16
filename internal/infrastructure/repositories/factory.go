package repositories

import (
	"context"
	"errors"
	"fmt"

	"livehub/internal/core/ports"
	"livehub/internal/infrastructure/repositories/memory"
	redisrepo "livehub/internal/infrastructure/repositories/redis"
	"livehub/internal/infrastructure/repositories/sqlstore"
	"livehub/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryFactory picks the storage backends from configuration. The
// moderation and chat stores follow storage.driver; stream sessions use Redis
// when it is enabled and reachable, and memory otherwise.
type RepositoryFactory struct {
	driver      string
	chatHistory int
	db          *gorm.DB
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory fails when the configured SQL store cannot be opened,
// since bans must survive restarts. An unreachable Redis only degrades
// stream history.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver:      cfg.Storage.Driver,
		chatHistory: cfg.Storage.ChatHistory,
		useRedis:    cfg.Redis.Enabled,
		logger:      logger,
	}

	if factory.driver != "memory" {
		db, err := sqlstore.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", factory.driver, err)
		}
		factory.db = db
		logger.Infow("Using SQL moderation store", "driver", factory.driver)
	} else {
		logger.Warn("Using memory moderation store, bans are lost on restart")
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("Failed to connect to Redis, falling back to memory stream repository",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
		}
	}

	return factory, nil
}

func (f *RepositoryFactory) CreateModerationStore() ports.ModerationStore {
	if f.db != nil {
		return sqlstore.NewModerationStore(f.db)
	}
	return memory.NewMemoryModerationStore()
}

func (f *RepositoryFactory) CreateChatRepository() ports.ChatRepository {
	if f.db != nil {
		return sqlstore.NewChatRepository(f.db)
	}
	return memory.NewMemoryChatRepository(f.chatHistory)
}

func (f *RepositoryFactory) CreateStreamRepository() ports.StreamRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisStreamRepository(f.redisClient)
	}
	return memory.NewMemoryStreamRepository()
}

// RedisClient is nil when Redis is disabled or unreachable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Ping checks the moderation store.
func (f *RepositoryFactory) Ping(ctx context.Context) error {
	if f.db == nil {
		return nil
	}
	return sqlstore.Ping(ctx, f.db)
}

func (f *RepositoryFactory) Close() error {
	var errs []error
	if f.redisClient != nil {
		errs = append(errs, redisrepo.CloseRedisClient(f.redisClient))
	}
	if f.db != nil {
		errs = append(errs, sqlstore.Close(f.db))
	}
	return errors.Join(errs...)
}
