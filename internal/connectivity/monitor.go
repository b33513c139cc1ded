// Package connectivity 连接状态监测：周期性探测远端，只在状态变化时发出通知。
package connectivity

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval     = 5 * time.Second
	defaultProbeTimeout = 3 * time.Second
)

// Transition 一次状态变化
type Transition struct {
	Online bool
	At     time.Time
}

// Replayer 上线时触发的重放（离线队列）
type Replayer interface {
	Len(ctx context.Context) (int, error)
	Replay(ctx context.Context) (int, error)
}

// Monitor 连接监测器
type Monitor struct {
	prober       Prober
	interval     time.Duration
	probeTimeout time.Duration
	logger       *zap.Logger

	online atomic.Bool
}

// NewMonitor 创建监测器；初始状态为离线
func NewMonitor(prober Prober, interval, probeTimeout time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Monitor{
		prober:       prober,
		interval:     interval,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// Online 最近一次探测结果
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Watch 开始探测并返回状态变化序列。每次调用都是一个新序列，从“离线”开始，
// 因此启动时已在线会立即收到一次 Online=true。ctx 结束后停止探测并关闭 channel。
func (m *Monitor) Watch(ctx context.Context) <-chan Transition {
	out := make(chan Transition, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		last := false
		for {
			online := m.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			m.online.Store(online)
			if online != last {
				last = online
				select {
				case out <- Transition{Online: online, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

func (m *Monitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	if err := m.prober.Probe(probeCtx); err != nil {
		m.logger.Debug("Connectivity probe failed", zap.Error(err))
		return false
	}
	return true
}

// Run 消费 Watch；每次离线→在线时，若队列非空则触发一次重放。阻塞直到 ctx 结束。
func (m *Monitor) Run(ctx context.Context, r Replayer) {
	for t := range m.Watch(ctx) {
		if !t.Online {
			m.logger.Warn("Connectivity lost")
			continue
		}
		m.logger.Info("Connectivity restored")

		n, err := r.Len(ctx)
		if err != nil {
			m.logger.Error("Failed to read offline queue length", zap.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		// 重放失败由队列记录，这里只记日志
		replayed, err := r.Replay(ctx)
		if err != nil {
			m.logger.Warn("Replay after reconnect did not complete",
				zap.Int("replayed", replayed),
				zap.Int("pending_before", n),
				zap.Error(err),
			)
			continue
		}
		m.logger.Info("Replay after reconnect completed", zap.Int("replayed", replayed))
	}
}
