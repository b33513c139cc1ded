package consumer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lifesignal-sync/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebSocketSource(t *testing.T) {
	upgrader := websocket.Upgrader{}
	authHeader := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(ContactUpdate{Op: OpSnapshot, Contacts: []models.Contact{
			{ID: "d1", IsDependent: true},
			{ID: "r1", IsResponder: true},
		}})
		_ = conn.WriteJSON(ContactUpdate{Op: OpDelete, ContactID: "r1"})
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, s := newConsumer(t, NewWebSocketSource(url, "tok", zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	assert.Equal(t, "Bearer tok", <-authHeader)
	require.Eventually(t, func() bool {
		_, hasD := s.Get("d1")
		_, hasR := s.Get("r1")
		return hasD && !hasR
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket source did not stop")
	}
}
