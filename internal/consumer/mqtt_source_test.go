package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	commonmqtt "lifesignal-sync/common/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	handler      commonmqtt.MessageHandler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(_ string, _ byte, handler commonmqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeSubscriber) QoS() byte { return 1 }

func (f *fakeSubscriber) Handler() commonmqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func TestMQTTSource(t *testing.T) {
	sub := &fakeSubscriber{}
	c, s := newConsumer(t, NewMQTTSource(sub, "lifesignal/u1/contacts", zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return sub.Handler() != nil }, time.Second, 5*time.Millisecond)
	h := sub.Handler()

	require.NoError(t, h("lifesignal/u1/contacts", []byte(`{"op":"upsert","contact":{"id":"r1","is_responder":true}}`)))
	assert.Error(t, h("lifesignal/u1/contacts", []byte(`not json`)))
	_, ok := s.Get("r1")
	assert.True(t, ok)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"lifesignal/u1/contacts"}, sub.unsubscribed)
}
