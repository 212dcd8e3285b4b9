package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	errx "github.com/AgriMind-advisor-poc/server/internal/core/error"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RedisStateRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStateRepository(rdb redis.Cmdable, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisStateRepository) stateKey(conversationID string) string {
	return fmt.Sprintf("advisory:%s:state", conversationID)
}

func (r *RedisStateRepository) LoadSnapshot(ctx context.Context, conversationID string) (model.State, error) {
	key := r.stateKey(conversationID)

	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return model.State{ConversationID: conversationID}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load state snapshot from redis")
		return model.State{}, errx.WrapRedis(err)
	}

	var snapshot model.State
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to unmarshal state snapshot")
		return model.State{}, fmt.Errorf("unmarshal state snapshot: %w", err)
	}
	if snapshot.ConversationID == "" {
		snapshot.ConversationID = conversationID
	}
	return snapshot, nil
}

func (r *RedisStateRepository) SaveSnapshot(ctx context.Context, state model.State) error {
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("conversationID", state.ConversationID).Msg("failed to marshal state snapshot")
		return fmt.Errorf("marshal state snapshot: %w", err)
	}
	key := r.stateKey(state.ConversationID)

	// write snapshot and extend TTL on touch
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write state snapshot to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisStateRepository) ClearSnapshot(ctx context.Context, conversationID string) error {
	key := r.stateKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete state snapshot from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.StateRepository = (*RedisStateRepository)(nil)
