package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NoopPresenter 不展示任何东西；权限永远拒绝，只记历史
type NoopPresenter struct{}

func (NoopPresenter) RequestPermission(context.Context) (bool, error) { return false, nil }

func (NoopPresenter) Present(context.Context, string, string) (Handle, error) { return "", nil }

func (NoopPresenter) RemoveFromTray(context.Context, Handle) error { return nil }

// Publisher MQTT 发布（common/mqtt.Client）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	QoS() byte
}

// trayCommand 发给通知栏代理的指令
type trayCommand struct {
	Action string `json:"action"` // present | remove
	Handle string `json:"handle"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
}

// MQTTPresenter 把展示/移除指令发布到通知栏代理订阅的主题
type MQTTPresenter struct {
	publisher Publisher
	topic     string
	enabled   bool
}

// NewMQTTPresenter 创建；enabled=false 等同于用户拒绝授权
func NewMQTTPresenter(publisher Publisher, topic string, enabled bool) *MQTTPresenter {
	return &MQTTPresenter{publisher: publisher, topic: topic, enabled: enabled}
}

func (p *MQTTPresenter) RequestPermission(context.Context) (bool, error) {
	return p.enabled, nil
}

func (p *MQTTPresenter) Present(_ context.Context, title, body string) (Handle, error) {
	handle := Handle(uuid.NewString())
	if err := p.publish(trayCommand{Action: "present", Handle: string(handle), Title: title, Body: body}); err != nil {
		return "", err
	}
	return handle, nil
}

func (p *MQTTPresenter) RemoveFromTray(_ context.Context, h Handle) error {
	return p.publish(trayCommand{Action: "remove", Handle: string(h)})
}

func (p *MQTTPresenter) publish(cmd trayCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal tray command: %w", err)
	}
	return p.publisher.Publish(p.topic, p.publisher.QoS(), false, payload)
}
