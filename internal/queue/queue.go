package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lifesignal-sync/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Executor 对一个离线动作执行对应的远程操作
type Executor func(ctx context.Context, action models.OfflineAction) error

// ReplayError 重放在某个动作上失败；该动作及其后的动作仍在队列中
type ReplayError struct {
	Action models.OfflineAction
	Err    error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay halted at action %s (%s, contact_id=%s): %v",
		e.Action.ID, e.Action.Kind, e.Action.TargetContactID, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// ErrClosed 队列已关闭
var ErrClosed = errors.New("offline queue is closed")

// OfflineQueue 离线修改队列
type OfflineQueue struct {
	log     ActionLog
	execute Executor
	group   singleflight.Group
	logger  *zap.Logger

	mu      sync.Mutex
	lastErr *ReplayError

	// 重放在队列自己的 ctx 下执行，只由 Close 取消
	base   context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex
	closed bool
	sweeps sync.WaitGroup
}

// NewOfflineQueue 创建队列
func NewOfflineQueue(log ActionLog, execute Executor, logger *zap.Logger) *OfflineQueue {
	base, cancel := context.WithCancel(context.Background())
	return &OfflineQueue{
		log:     log,
		execute: execute,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}
}

// Enqueue 追加到队尾
func (q *OfflineQueue) Enqueue(ctx context.Context, action models.OfflineAction) error {
	if err := q.log.Append(ctx, action); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", action.Kind, err)
	}
	q.logger.Info("Offline action enqueued",
		zap.String("action_id", action.ID),
		zap.String("kind", action.Kind.String()),
		zap.String("contact_id", action.TargetContactID),
	)
	return nil
}

// Replay 按 FIFO 重放，遇到第一个失败即停止，返回成功重放的数量。
// 并发调用合并为同一次重放。ctx 只决定调用方等多久，
// 某个调用方超时或取消不会中断其他调用方共享的那次重放。
func (q *OfflineQueue) Replay(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ch := q.group.DoChan("replay", q.sweep)
	select {
	case res := <-ch:
		if res.Shared {
			q.logger.Debug("Replay request coalesced with in-flight sweep")
		}
		n, _ := res.Val.(int)
		return n, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (q *OfflineQueue) sweep() (interface{}, error) {
	q.runMu.Lock()
	if q.closed {
		q.runMu.Unlock()
		return 0, ErrClosed
	}
	q.sweeps.Add(1)
	q.runMu.Unlock()
	defer q.sweeps.Done()

	return q.replay(q.base)
}

func (q *OfflineQueue) replay(ctx context.Context) (int, error) {
	replayed := 0
	for {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		action, ok, err := q.log.Peek(ctx)
		if err != nil {
			return replayed, fmt.Errorf("failed to read queue head: %w", err)
		}
		if !ok {
			q.setLastError(nil)
			if replayed > 0 {
				q.logger.Info("Offline queue drained", zap.Int("replayed", replayed))
			}
			return replayed, nil
		}

		if err := q.execute(ctx, action); err != nil {
			rerr := &ReplayError{Action: action, Err: err}
			q.setLastError(rerr)
			q.logger.Warn("Replay halted",
				zap.String("action_id", action.ID),
				zap.String("kind", action.Kind.String()),
				zap.String("contact_id", action.TargetContactID),
				zap.Int("replayed", replayed),
				zap.Error(err),
			)
			return replayed, rerr
		}

		if err := q.log.Remove(ctx, action.ID); err != nil {
			return replayed, fmt.Errorf("failed to remove replayed action: %w", err)
		}
		replayed++
	}
}

// Pending 当前队列快照
func (q *OfflineQueue) Pending(ctx context.Context) ([]models.OfflineAction, error) {
	return q.log.List(ctx)
}

// Len 队列长度
func (q *OfflineQueue) Len(ctx context.Context) (int, error) {
	return q.log.Len(ctx)
}

// LastError 最近一次重放失败；重放清空队列后复位为 nil
func (q *OfflineQueue) LastError() *ReplayError {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

func (q *OfflineQueue) setLastError(err *ReplayError) {
	q.mu.Lock()
	q.lastErr = err
	q.mu.Unlock()
}

// Close 取消进行中的重放，等它退出后关闭底层存储
func (q *OfflineQueue) Close() error {
	q.runMu.Lock()
	if q.closed {
		q.runMu.Unlock()
		return nil
	}
	q.closed = true
	q.runMu.Unlock()

	q.cancel()
	q.sweeps.Wait()
	return q.log.Close()
}
