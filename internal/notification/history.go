package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"lifesignal-sync/internal/models"

	"github.com/go-redis/redis/v8"
)

const defaultHistoryKey = "lifesignal:notification_history"

// HistoryStore 通知历史；只追加，用户可删除单条或清空
type HistoryStore interface {
	Append(ctx context.Context, ev models.NotificationEvent) error
	List(ctx context.Context) ([]models.NotificationEvent, error)
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}

// MemoryHistory 内存实现；limit > 0 时按运维保留策略丢弃最旧的
type MemoryHistory struct {
	mu     sync.Mutex
	limit  int
	events []models.NotificationEvent
}

// NewMemoryHistory 创建；capacity <= 0 不限条数
func NewMemoryHistory(capacity int) *MemoryHistory {
	return &MemoryHistory{limit: capacity}
}

func (h *MemoryHistory) Append(_ context.Context, ev models.NotificationEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if over := len(h.events) - h.limit; h.limit > 0 && over > 0 {
		h.events = append([]models.NotificationEvent(nil), h.events[over:]...)
	}
	return nil
}

func (h *MemoryHistory) List(_ context.Context) ([]models.NotificationEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.NotificationEvent(nil), h.events...), nil
}

func (h *MemoryHistory) Delete(_ context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, ev := range h.events {
		if ev.ID == id {
			h.events = append(h.events[:i], h.events[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (h *MemoryHistory) Clear(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
	return nil
}

// RedisHistory Redis 列表实现，每个元素是一个 JSON 事件
type RedisHistory struct {
	client *redis.Client
	key    string
	limit  int
}

// NewRedisHistory 创建；capacity <= 0 不限条数
func NewRedisHistory(client *redis.Client, key string, capacity int) *RedisHistory {
	if key == "" {
		key = defaultHistoryKey
	}
	return &RedisHistory{client: client, key: key, limit: capacity}
}

func (h *RedisHistory) Append(ctx context.Context, ev models.NotificationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if h.limit <= 0 {
		if err := h.client.RPush(ctx, h.key, data).Err(); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
		return nil
	}
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, h.key, data)
	pipe.LTrim(ctx, h.key, int64(-h.limit), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (h *RedisHistory) List(ctx context.Context) ([]models.NotificationEvent, error) {
	raws, err := h.client.LRange(ctx, h.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]models.NotificationEvent, 0, len(raws))
	for _, raw := range raws {
		var ev models.NotificationEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (h *RedisHistory) Delete(ctx context.Context, id string) (bool, error) {
	raws, err := h.client.LRange(ctx, h.key, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to list events: %w", err)
	}
	for _, raw := range raws {
		var ev models.NotificationEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		if ev.ID != id {
			continue
		}
		n, err := h.client.LRem(ctx, h.key, 1, raw).Result()
		if err != nil {
			return false, fmt.Errorf("failed to delete event %s: %w", id, err)
		}
		return n > 0, nil
	}
	return false, nil
}

func (h *RedisHistory) Clear(ctx context.Context) error {
	if err := h.client.Del(ctx, h.key).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
