// Package queue 离线修改队列：断网期间的写操作按 FIFO 持久化，恢复连接后顺序重放。
package queue

import (
	"context"
	"errors"
	"sync"

	"lifesignal-sync/internal/models"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrQueueFull    = errors.New("offline queue is full")
)

// atCapacity capacity <= 0 表示不限长度
func atCapacity(n, capacity int) bool {
	return capacity > 0 && n >= capacity
}

// ActionLog 离线动作的持久化存储，必须保持追加顺序
type ActionLog interface {
	Append(ctx context.Context, action models.OfflineAction) error
	// Peek 返回队首；队列为空时 ok=false
	Peek(ctx context.Context) (action models.OfflineAction, ok bool, err error)
	// Remove 仅当队首 ID 等于 id 时移除队首
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.OfflineAction, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryActionLog 进程内存实现，重启后丢失
type MemoryActionLog struct {
	mu       sync.Mutex
	capacity int
	items    []models.OfflineAction
}

// NewMemoryActionLog 创建内存队列；capacity <= 0 不限长度
func NewMemoryActionLog(capacity int) *MemoryActionLog {
	return &MemoryActionLog{capacity: capacity}
}

func (l *MemoryActionLog) Append(_ context.Context, action models.OfflineAction) error {
	if action.ID == "" {
		return ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if atCapacity(len(l.items), l.capacity) {
		return ErrQueueFull
	}
	l.items = append(l.items, action)
	return nil
}

func (l *MemoryActionLog) Peek(_ context.Context) (models.OfflineAction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return models.OfflineAction{}, false, nil
	}
	return l.items[0], true, nil
}

func (l *MemoryActionLog) Remove(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) > 0 && l.items[0].ID == id {
		l.items = l.items[1:]
	}
	return nil
}

func (l *MemoryActionLog) List(_ context.Context) ([]models.OfflineAction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.OfflineAction(nil), l.items...), nil
}

func (l *MemoryActionLog) Len(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items), nil
}

func (l *MemoryActionLog) Close() error {
	return nil
}
