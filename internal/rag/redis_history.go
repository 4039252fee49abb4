package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/provider"
)

const historyTTL = 24 * time.Hour

// RedisHistory stores conversation turns in a Redis list per session, so
// chat sessions survive process restarts.
type RedisHistory struct {
	client *redis.Client
	limit  int
}

func NewRedisHistory(ctx context.Context, cfg config.RedisConfig, limit int) (*RedisHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisHistory{client: client, limit: limit}, nil
}

func historyKey(sessionID string) string { return "siterag:history:" + sessionID }

func (h *RedisHistory) Append(ctx context.Context, sessionID string, messages ...provider.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, b)
	}
	key := historyKey(sessionID)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-h.limit), -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Get(ctx context.Context, sessionID string) ([]provider.Message, error) {
	raw, err := h.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	msgs := make([]provider.Message, 0, len(raw))
	for _, r := range raw {
		var m provider.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (h *RedisHistory) Clear(ctx context.Context, sessionID string) error {
	if err := h.client.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Close() error { return h.client.Close() }
