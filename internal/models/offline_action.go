package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionKind 离线动作类型，对应一个远程写操作
type ActionKind int

const (
	ActionAddContact ActionKind = iota + 1
	ActionRemoveContact
	ActionUpdateRoles
	ActionSendPing
	ActionClearPing
	ActionRespondToPing
	ActionRespondToAllPings
)

var actionKindNames = map[ActionKind]string{
	ActionAddContact:        "add_contact",
	ActionRemoveContact:     "remove_contact",
	ActionUpdateRoles:       "update_roles",
	ActionSendPing:          "send_ping",
	ActionClearPing:         "clear_ping",
	ActionRespondToPing:     "respond_to_ping",
	ActionRespondToAllPings: "respond_to_all_pings",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("action_kind(%d)", int(k))
}

// MarshalText 持久化时使用名称，避免枚举值调整后旧队列无法解析
func (k ActionKind) MarshalText() ([]byte, error) {
	name, ok := actionKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown action kind: %d", int(k))
	}
	return []byte(name), nil
}

func (k *ActionKind) UnmarshalText(b []byte) error {
	for kind, name := range actionKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown action kind: %q", string(b))
}

// RolesPayload add_contact / update_roles 的载荷
type RolesPayload struct {
	IsResponder bool `json:"is_responder"`
	IsDependent bool `json:"is_dependent"`
}

// OfflineAction 断网期间记录的待重放写操作
type OfflineAction struct {
	ID              string          `json:"id"`
	Kind            ActionKind      `json:"kind"`
	TargetContactID string          `json:"target_contact_id,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt      time.Time       `json:"enqueued_at"`
}

// NewOfflineAction 创建离线动作；ID 使用 UUIDv7（按时间有序）
func NewOfflineAction(kind ActionKind, targetContactID string, payload any, now time.Time) (OfflineAction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return OfflineAction{}, fmt.Errorf("failed to generate action id: %w", err)
	}
	action := OfflineAction{
		ID:              id.String(),
		Kind:            kind,
		TargetContactID: targetContactID,
		EnqueuedAt:      now,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return OfflineAction{}, fmt.Errorf("failed to marshal action payload: %w", err)
		}
		action.Payload = raw
	}
	return action, nil
}

// DecodePayload 解析载荷
func (a OfflineAction) DecodePayload(dest any) error {
	if len(a.Payload) == 0 {
		return fmt.Errorf("action %s (%s) has no payload", a.ID, a.Kind)
	}
	if err := json.Unmarshal(a.Payload, dest); err != nil {
		return fmt.Errorf("failed to unmarshal payload of action %s: %w", a.ID, err)
	}
	return nil
}
