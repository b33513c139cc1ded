package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lifesignal-sync/internal/models"

	"github.com/go-redis/redis/v8"
)

const defaultRedisQueueKey = "lifesignal:offline_actions"

// RedisActionLog Redis 列表实现：RPUSH 追加，LINDEX 0 查看队首
type RedisActionLog struct {
	client   *redis.Client
	key      string
	capacity int
}

// NewRedisActionLog 创建 Redis 队列
func NewRedisActionLog(client *redis.Client, key string, capacity int) *RedisActionLog {
	if key == "" {
		key = defaultRedisQueueKey
	}
	return &RedisActionLog{client: client, key: key, capacity: capacity}
}

func (l *RedisActionLog) Append(ctx context.Context, action models.OfflineAction) error {
	if action.ID == "" {
		return ErrInvalidInput
	}
	if l.capacity > 0 {
		n, err := l.client.LLen(ctx, l.key).Result()
		if err != nil {
			return fmt.Errorf("failed to read queue length: %w", err)
		}
		if atCapacity(int(n), l.capacity) {
			return ErrQueueFull
		}
	}
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	if err := l.client.RPush(ctx, l.key, data).Err(); err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	return nil
}

func (l *RedisActionLog) Peek(ctx context.Context) (models.OfflineAction, bool, error) {
	raw, err := l.client.LIndex(ctx, l.key, 0).Result()
	if errors.Is(err, redis.Nil) {
		return models.OfflineAction{}, false, nil
	}
	if err != nil {
		return models.OfflineAction{}, false, fmt.Errorf("failed to read queue head: %w", err)
	}
	var action models.OfflineAction
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		return models.OfflineAction{}, false, fmt.Errorf("failed to unmarshal queue head: %w", err)
	}
	return action, true, nil
}

// Remove 用 WATCH 保证只弹出 ID 匹配的队首
func (l *RedisActionLog) Remove(ctx context.Context, id string) error {
	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.LIndex(ctx, l.key, 0).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var head models.OfflineAction
		if err := json.Unmarshal([]byte(raw), &head); err != nil {
			return err
		}
		if head.ID != id {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPop(ctx, l.key)
			return nil
		})
		return err
	}, l.key)
	if err != nil {
		return fmt.Errorf("failed to remove action %s: %w", id, err)
	}
	return nil
}

func (l *RedisActionLog) List(ctx context.Context) ([]models.OfflineAction, error) {
	raws, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	out := make([]models.OfflineAction, 0, len(raws))
	for _, raw := range raws {
		var action models.OfflineAction
		if err := json.Unmarshal([]byte(raw), &action); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action: %w", err)
		}
		out = append(out, action)
	}
	return out, nil
}

func (l *RedisActionLog) Len(ctx context.Context) (int, error) {
	n, err := l.client.LLen(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return int(n), nil
}

func (l *RedisActionLog) Close() error {
	return l.client.Close()
}
