package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	streamPrefix   = "livehub:stream:"
	liveStreamsKey = streamPrefix + "live"
	allStreamsKey  = streamPrefix + "all"
)

// RedisStreamRepository stores each session as JSON, indexed by a set of
// live ids and a sorted set of all ids scored by start time.
type RedisStreamRepository struct {
	client *redis.Client
}

func NewRedisStreamRepository(client *redis.Client) ports.StreamRepository {
	return &RedisStreamRepository{client: client}
}

func (r *RedisStreamRepository) sessionKey(id string) string {
	return streamPrefix + "session:" + id
}

func (r *RedisStreamRepository) Save(ctx context.Context, session *domain.StreamSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal stream session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.ID), data, 0)
		pipe.ZAdd(ctx, allStreamsKey, redis.Z{
			Score:  float64(session.StartedAt.UnixMilli()),
			Member: session.ID,
		})
		if session.IsLive() {
			pipe.SAdd(ctx, liveStreamsKey, session.ID)
		} else {
			pipe.SRem(ctx, liveStreamsKey, session.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save stream session in Redis: %w", err)
	}
	return nil
}

func (r *RedisStreamRepository) GetByID(ctx context.Context, id string) (*domain.StreamSession, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream session from Redis: %w", err)
	}

	var session domain.StreamSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream session: %w", err)
	}
	return &session, nil
}

func (r *RedisStreamRepository) ListLive(ctx context.Context) ([]*domain.StreamSession, error) {
	ids, err := r.client.SMembers(ctx, liveStreamsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get live streams from Redis: %w", err)
	}
	sessions, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	live := sessions[:0]
	for _, s := range sessions {
		if s.IsLive() {
			live = append(live, s)
		}
	}
	sortByStart(live)
	return live, nil
}

func (r *RedisStreamRepository) ListAll(ctx context.Context) ([]*domain.StreamSession, error) {
	ids, err := r.client.ZRange(ctx, allStreamsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list streams from Redis: %w", err)
	}
	return r.load(ctx, ids)
}

// load fetches sessions in id order, skipping ids whose record is gone.
func (r *RedisStreamRepository) load(ctx context.Context, ids []string) ([]*domain.StreamSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load stream sessions from Redis: %w", err)
	}

	out := make([]*domain.StreamSession, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var session domain.StreamSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stream session: %w", err)
		}
		out = append(out, &session)
	}
	return out, nil
}

func sortByStart(sessions []*domain.StreamSession) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
}
