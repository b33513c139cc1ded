package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resync 从远端加载全量联系人快照并替换本地集合
func (s *SyncService) Resync(ctx context.Context) error {
	contacts, err := s.remote.ListContacts(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}
	if err := s.store.Replace(contacts); err != nil {
		return fmt.Errorf("failed to apply contact snapshot: %w", err)
	}
	s.logger.Info("Contact snapshot loaded", zap.Int("contact_count", len(contacts)))
	return nil
}

// Start 启动服务（阻塞直到 ctx 结束或某个循环返回错误）
// 启动快照不产生通知；之后的远端更新才会进入通知流
func (s *SyncService) Start(ctx context.Context) error {
	s.logger.Info("Starting lifesignal sync service",
		zap.String("user_id", s.userID),
		zap.String("sort_mode", s.SortMode().String()),
		zap.Duration("confirm_timeout", s.confirmTimeout),
	)

	if err := s.Resync(ctx); err != nil {
		s.logger.Warn("Initial contact snapshot failed, waiting for update stream", zap.Error(err))
	}
	s.store.RefreshDerived(s.now())
	s.feed.enabled.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.feed.run(gctx, s.deliver)
		return nil
	})
	g.Go(func() error {
		s.refreshLoop(gctx)
		return nil
	})
	if s.monitor != nil {
		g.Go(func() error {
			s.monitor.Run(gctx, s)
			return nil
		})
	}
	if s.consumer != nil {
		g.Go(func() error {
			return s.consumer.Start(gctx)
		})
	}
	return g.Wait()
}

// refreshLoop 周期性重新计算 IsNonResponsive
func (s *SyncService) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.store.RefreshDerived(s.now()); n > 0 {
				s.logger.Debug("Derived state refreshed", zap.Int("changed", n))
			}
		}
	}
}

func (s *SyncService) deliver(ctx context.Context, n notice) {
	if _, err := s.notifier.Notify(ctx, n.typ, n.title, n.body); err != nil {
		s.logger.Error("Failed to dispatch notification",
			zap.String("type", n.typ.String()),
			zap.Error(err),
		)
	}
}

// Stop 停止后台重放并释放资源
func (s *SyncService) Stop(ctx context.Context) error {
	s.bgMu.Lock()
	s.stopped = true
	s.bgMu.Unlock()
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for background replay to stop")
	}

	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.queue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close offline queue: %w", err))
	}
	s.logger.Info("Lifesignal sync service stopped")
	return errors.Join(errs...)
}
