// Package notification 本地通知：每个事件写入历史，并在获得授权时短暂显示在通知栏。
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lifesignal-sync/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTrayDelay 通知在通知栏停留的默认时长
const DefaultTrayDelay = 3 * time.Second

// Handle 通知栏条目句柄，由 Presenter 分配
type Handle string

// Presenter 通知展示方（系统通知栏或代理）
type Presenter interface {
	RequestPermission(ctx context.Context) (bool, error)
	Present(ctx context.Context, title, body string) (Handle, error)
	RemoveFromTray(ctx context.Context, h Handle) error
}

type trayEntry struct {
	handle Handle
	timer  *time.Timer
}

// Dispatcher 通知分发器
type Dispatcher struct {
	presenter Presenter
	history   HistoryStore
	trayDelay time.Duration
	logger    *zap.Logger
	now       func() time.Time

	permMu      sync.Mutex
	permChecked bool
	permGranted bool

	mu      sync.Mutex
	pending map[string]*trayEntry
	closed  bool
}

// NewDispatcher 创建分发器；trayDelay<=0 时使用 DefaultTrayDelay
func NewDispatcher(presenter Presenter, history HistoryStore, trayDelay time.Duration, logger *zap.Logger) *Dispatcher {
	if trayDelay <= 0 {
		trayDelay = DefaultTrayDelay
	}
	return &Dispatcher{
		presenter: presenter,
		history:   history,
		trayDelay: trayDelay,
		logger:    logger,
		now:       time.Now,
		pending:   make(map[string]*trayEntry),
	}
}

// Notify 记录一条历史；有权限时展示并在 trayDelay 后自动移除。
// 只有写历史失败才返回错误，展示失败降级为仅历史。
func (d *Dispatcher) Notify(ctx context.Context, typ models.NotificationType, title, body string) (models.NotificationEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.NotificationEvent{}, fmt.Errorf("failed to generate event id: %w", err)
	}
	ev := models.NotificationEvent{
		ID:        id.String(),
		Timestamp: d.now(),
		Type:      typ,
		Title:     title,
		Body:      body,
	}
	if err := d.history.Append(ctx, ev); err != nil {
		return models.NotificationEvent{}, fmt.Errorf("failed to append notification history: %w", err)
	}

	if !d.permitted(ctx) {
		return ev, nil
	}

	handle, err := d.presenter.Present(ctx, title, body)
	if err != nil {
		d.logger.Warn("Failed to present notification",
			zap.String("event_id", ev.ID),
			zap.String("type", typ.String()),
			zap.Error(err),
		)
		return ev, nil
	}
	d.schedule(ev.ID, handle)
	return ev, nil
}

// permitted 只询问一次；询问出错时不缓存，下次再问
func (d *Dispatcher) permitted(ctx context.Context) bool {
	d.permMu.Lock()
	defer d.permMu.Unlock()
	if d.permChecked {
		return d.permGranted
	}
	granted, err := d.presenter.RequestPermission(ctx)
	if err != nil {
		d.logger.Warn("Notification permission request failed", zap.Error(err))
		return false
	}
	d.permChecked = true
	d.permGranted = granted
	if !granted {
		d.logger.Info("Notification permission denied, history only")
	}
	return granted
}

func (d *Dispatcher) schedule(eventID string, handle Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		go d.remove(handle)
		return
	}
	entry := &trayEntry{handle: handle}
	entry.timer = time.AfterFunc(d.trayDelay, func() {
		d.mu.Lock()
		cur, ok := d.pending[eventID]
		if ok && cur == entry {
			delete(d.pending, eventID)
		}
		d.mu.Unlock()
		if ok && cur == entry {
			d.remove(handle)
		}
	})
	d.pending[eventID] = entry
}

func (d *Dispatcher) remove(handle Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.presenter.RemoveFromTray(ctx, handle); err != nil {
		d.logger.Warn("Failed to remove notification from tray",
			zap.String("handle", string(handle)),
			zap.Error(err),
		)
	}
}

// Cancel 立即从通知栏移除（事件已不再相关时）；历史记录保留。返回是否仍在展示中
func (d *Dispatcher) Cancel(eventID string) bool {
	d.mu.Lock()
	entry, ok := d.pending[eventID]
	if ok {
		delete(d.pending, eventID)
		entry.timer.Stop()
	}
	d.mu.Unlock()
	if ok {
		d.remove(entry.handle)
	}
	return ok
}

// Presented 仍在通知栏中的数量
func (d *Dispatcher) Presented() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// History 历史记录，按时间先后
func (d *Dispatcher) History(ctx context.Context) ([]models.NotificationEvent, error) {
	return d.history.List(ctx)
}

// DeleteEvent 删除一条历史
func (d *Dispatcher) DeleteEvent(ctx context.Context, id string) (bool, error) {
	return d.history.Delete(ctx, id)
}

// ClearHistory 清空历史
func (d *Dispatcher) ClearHistory(ctx context.Context) error {
	return d.history.Clear(ctx)
}

// Close 停止所有定时器并移除仍在展示的条目
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	entries := make([]*trayEntry, 0, len(d.pending))
	for id, entry := range d.pending {
		entry.timer.Stop()
		entries = append(entries, entry)
		delete(d.pending, id)
	}
	d.mu.Unlock()

	for _, entry := range entries {
		d.remove(entry.handle)
	}
}
