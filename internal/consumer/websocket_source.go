package consumer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketSource 长连接推送；服务端在连接建立后应先推送一次 snapshot
type WebSocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWebSocketSource 创建；token 非空时以 Bearer 方式放在握手请求头
func NewWebSocketSource(url, token string, logger *zap.Logger) *WebSocketSource {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WebSocketSource{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *WebSocketSource) Name() string {
	return "websocket:" + s.url
}

// Run 连接断开后按指数退避重连
func (s *WebSocketSource) Run(ctx context.Context, deliver DeliverFunc) error {
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		connected, err := s.session(ctx, deliver)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoffDuration = time.Second
		}
		s.logger.Warn("WebSocket update stream disconnected",
			zap.Error(err),
			zap.Duration("backoff", backoffDuration),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoffDuration):
			backoffDuration *= 2
			if backoffDuration > maxBackoff {
				backoffDuration = maxBackoff
			}
		}
	}
}

// session 一次连接；返回是否曾连接成功
func (s *WebSocketSource) session(ctx context.Context, deliver DeliverFunc) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return false, fmt.Errorf("failed to dial %s: %w", s.url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Info("WebSocket update stream connected", zap.String("url", s.url))
	for {
		var update ContactUpdate
		if err := conn.ReadJSON(&update); err != nil {
			return true, err
		}
		if err := deliver(ctx, update); err != nil {
			s.logger.Error("Failed to process update", zap.String("op", string(update.Op)), zap.Error(err))
		}
	}
}
