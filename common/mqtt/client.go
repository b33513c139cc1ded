package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lifesignal-sync/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	// 离线时发布不能无限等待
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client MQTT 客户端
// CleanSession 下 broker 不保留订阅，重连成功后由 onConnect 重新订阅
type Client struct {
	client mqtt.Client
	qos    byte
	logger *zap.Logger

	connected atomic.Bool

	mu   sync.Mutex
	subs map[string]subscription
}

// NewClient 创建MQTT客户端并连接
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		qos:    cfg.QoS,
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.connected.Store(false)
			logger.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)

	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		token := client.Subscribe(topic, sub.qos, c.wrap(sub.handler))
		if token.Wait() && token.Error() != nil {
			c.logger.Error("Failed to resubscribe after reconnect", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		c.logger.Info("Resubscribed after reconnect", zap.String("topic", topic))
	}
}

func (c *Client) wrap(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}
}

// QoS 配置的默认 QoS
func (c *Client) QoS() byte {
	return c.qos
}

// Subscribe 订阅并记住主题，断线重连后自动恢复；handler 的错误只记录
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrap(handler))
	if token.Wait() && token.Error() != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe %v: %w", topics, token.Error())
	}
	return nil
}

// Publish 发布消息，最多等待 publishTimeout
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.connected.Store(false)
	c.client.Disconnect(disconnectQuiesce)
}

// IsConnected 最近一次连接回调的结果（connectivity 探测使用）
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnectionOpen()
}
