package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	commonmqtt "lifesignal-sync/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅（common/mqtt.Client）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler commonmqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	QoS() byte
}

// MQTTSource 订阅一个主题，每条消息是一个 JSON ContactUpdate
type MQTTSource struct {
	client Subscriber
	topic  string
	logger *zap.Logger
}

// NewMQTTSource 创建
func NewMQTTSource(client Subscriber, topic string, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{client: client, topic: topic, logger: logger}
}

func (s *MQTTSource) Name() string {
	return "mqtt:" + s.topic
}

// Run 订阅后阻塞到 ctx 结束，然后取消订阅
func (s *MQTTSource) Run(ctx context.Context, deliver DeliverFunc) error {
	err := s.client.Subscribe(s.topic, s.client.QoS(), func(topic string, payload []byte) error {
		var update ContactUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			return fmt.Errorf("failed to unmarshal update from %s: %w", topic, err)
		}
		return deliver(ctx, update)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := s.client.Unsubscribe(s.topic); err != nil {
		s.logger.Warn("Failed to unsubscribe", zap.String("topic", s.topic), zap.Error(err))
	}
	return nil
}
