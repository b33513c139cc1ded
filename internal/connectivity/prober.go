package connectivity

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
)

var errDisconnected = errors.New("disconnected")

// Prober 一次可达性探测；返回 nil 表示在线
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc 函数适配
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HealthChecker 远端健康检查（remote.HTTPClient）
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthProber 用远端健康检查接口探测
func NewHealthProber(hc HealthChecker) Prober {
	return ProberFunc(hc.Health)
}

// ConnectionState MQTT 连接状态（common/mqtt.Client）
type ConnectionState interface {
	IsConnected() bool
}

// NewMQTTProber 以 broker 连接状态作为在线依据
func NewMQTTProber(c ConnectionState) Prober {
	return ProberFunc(func(context.Context) error {
		if !c.IsConnected() {
			return errDisconnected
		}
		return nil
	})
}

// NewRedisProber Redis PING
func NewRedisProber(client *redis.Client) Prober {
	return ProberFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// StaticProber 手动设置的状态（测试、或没有可探测对象时）
type StaticProber struct {
	online atomic.Bool
}

// NewStaticProber 创建
func NewStaticProber(online bool) *StaticProber {
	p := &StaticProber{}
	p.online.Store(online)
	return p
}

// Set 修改状态
func (p *StaticProber) Set(online bool) {
	p.online.Store(online)
}

func (p *StaticProber) Probe(context.Context) error {
	if !p.online.Load() {
		return errDisconnected
	}
	return nil
}
