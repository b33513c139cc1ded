package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lifesignal-sync/internal/models"
)

// FileActionLog 整个队列保存为一个 JSON 快照，每次修改先写临时文件再 rename
type FileActionLog struct {
	path     string
	capacity int
	mu       sync.Mutex
	items    []models.OfflineAction
}

type fileActionLogState struct {
	Items []models.OfflineAction `json:"items"`
}

// NewFileActionLog 打开（或创建）文件队列
func NewFileActionLog(path string, capacity int) (*FileActionLog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	l := &FileActionLog{
		path:     path,
		capacity: capacity,
		items:    []models.OfflineAction{},
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("failed to load offline queue %s: %w", path, err)
	}
	return l, nil
}

func (l *FileActionLog) Append(_ context.Context, action models.OfflineAction) error {
	if action.ID == "" {
		return ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if atCapacity(len(l.items), l.capacity) {
		return ErrQueueFull
	}
	l.items = append(l.items, action)
	if err := l.saveLocked(); err != nil {
		l.items = l.items[:len(l.items)-1]
		return err
	}
	return nil
}

func (l *FileActionLog) Peek(_ context.Context) (models.OfflineAction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return models.OfflineAction{}, false, nil
	}
	return l.items[0], true, nil
}

func (l *FileActionLog) Remove(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 || l.items[0].ID != id {
		return nil
	}
	head := l.items[0]
	l.items = l.items[1:]
	if err := l.saveLocked(); err != nil {
		l.items = append([]models.OfflineAction{head}, l.items...)
		return err
	}
	return nil
}

func (l *FileActionLog) List(_ context.Context) ([]models.OfflineAction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.OfflineAction(nil), l.items...), nil
}

func (l *FileActionLog) Len(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items), nil
}

func (l *FileActionLog) Close() error {
	return nil
}

func (l *FileActionLog) load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var snapshot fileActionLogState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	// 容量调小后已有的动作全部保留，只拒绝新的追加
	l.items = append([]models.OfflineAction(nil), snapshot.Items...)
	return nil
}

func (l *FileActionLog) saveLocked() error {
	snapshot := fileActionLogState{
		Items: append([]models.OfflineAction(nil), l.items...),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
