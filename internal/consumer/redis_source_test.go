package consumer

import (
	"context"
	"testing"
	"time"

	rediscommon "lifesignal-sync/common/redis"
	"lifesignal-sync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisStreamSource_DeliversAndAcks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := NewRedisStreamSource(client, zap.NewNop(), "contact:updates", "sync", "test-1", 10, 0)
	c, s := newConsumer(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		return client.Exists(context.Background(), "contact:updates").Val() == 1
	}, time.Second, 10*time.Millisecond)

	_, err := rediscommon.PublishJSONToStream(context.Background(), client, "contact:updates", ContactUpdate{
		Op:      OpUpsert,
		Contact: &models.Contact{ID: "c1", DisplayName: "Ann", IsDependent: true},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := s.Get("c1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := client.XPending(context.Background(), "contact:updates", "sync").Result()
		return err == nil && pending.Count == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestParseStreamMessage(t *testing.T) {
	_, err := parseStreamMessage(rediscommon.StreamMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	u, err := parseStreamMessage(rediscommon.StreamMessage{ID: "1-0", Values: map[string]interface{}{
		"data": `{"op":"delete","contact_id":"c9"}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, OpDelete, u.Op)
	assert.Equal(t, "c9", u.ContactID)
}
