package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = "livehub:schema:version"
	currentSchemaVersion = 2
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("Redis schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("Running Redis migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Drop the pre-release key layout.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				return client.Del(ctx, streamPrefix+"active").Err()
			},
		},
		{
			// Rebuild the live index from the stored sessions.
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client) error {
				repo := &RedisStreamRepository{client: client}
				all, err := repo.ListAll(ctx)
				if err != nil {
					return err
				}
				_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, liveStreamsKey)
					for _, s := range all {
						if s.IsLive() {
							pipe.SAdd(ctx, liveStreamsKey, s.ID)
						}
					}
					return nil
				})
				return err
			},
		},
	}
}
