package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func recv(t *testing.T, ch <-chan Transition) Transition {
	t.Helper()
	select {
	case tr, ok := <-ch:
		require.True(t, ok, "channel closed")
		return tr
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transition")
		return Transition{}
	}
}

func assertQuiet(t *testing.T, ch <-chan Transition) {
	t.Helper()
	select {
	case tr := <-ch:
		t.Fatalf("unexpected transition: %+v", tr)
	case <-time.After(40 * time.Millisecond):
	}
}

func TestWatch_EmitsOnlyChanges(t *testing.T) {
	p := NewStaticProber(false)
	m := NewMonitor(p, 5*time.Millisecond, 50*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := m.Watch(ctx)
	assertQuiet(t, ch)
	assert.False(t, m.Online())

	p.Set(true)
	assert.True(t, recv(t, ch).Online)
	assertQuiet(t, ch)
	assert.True(t, m.Online())

	p.Set(false)
	assert.False(t, recv(t, ch).Online)
}

func TestWatch_ClosesOnCancelAndRestarts(t *testing.T) {
	p := NewStaticProber(true)
	m := NewMonitor(p, 5*time.Millisecond, 50*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	ch := m.Watch(ctx)
	assert.True(t, recv(t, ch).Online)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// 新序列重新从离线开始
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	assert.True(t, recv(t, m.Watch(ctx2)).Online)
}

type fakeReplayer struct {
	mu      sync.Mutex
	pending int
	sweeps  int
}

func (f *fakeReplayer) Len(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeReplayer) Replay(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	n := f.pending
	f.pending = 0
	return n, nil
}

func (f *fakeReplayer) Sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func TestRun_ReplaysOnReconnectWhenQueueNonEmpty(t *testing.T) {
	p := NewStaticProber(false)
	m := NewMonitor(p, 5*time.Millisecond, 50*time.Millisecond, zap.NewNop())
	r := &fakeReplayer{pending: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, r)
		close(done)
	}()

	p.Set(true)
	require.Eventually(t, func() bool { return r.Sweeps() == 1 }, time.Second, 5*time.Millisecond)

	// 队列已空：再次上线不触发重放
	p.Set(false)
	require.Eventually(t, func() bool { return !m.Online() }, time.Second, 5*time.Millisecond)
	p.Set(true)
	require.Eventually(t, m.Online, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, r.Sweeps())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

type fakeConn struct{ connected bool }

func (f fakeConn) IsConnected() bool { return f.connected }

func TestProbers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewMQTTProber(fakeConn{connected: true}).Probe(ctx))
	assert.Error(t, NewMQTTProber(fakeConn{}).Probe(ctx))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	rp := NewRedisProber(client)
	assert.NoError(t, rp.Probe(ctx))
	mr.Close()
	assert.Error(t, rp.Probe(ctx))

	assert.NoError(t, NewHealthProber(fakeHealth{}).Probe(ctx))
	assert.Error(t, NewHealthProber(fakeHealth{err: errDisconnected}).Probe(ctx))
}
