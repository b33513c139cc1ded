package models

import (
	"fmt"
	"time"
)

// NotificationType 本地通知类型
type NotificationType int

const (
	NotificationCheckIn NotificationType = iota + 1
	NotificationManualAlertActivated
	NotificationManualAlertCleared
	NotificationNonResponsive
	NotificationPingSent
	NotificationPingCleared
	NotificationPingResponded
	NotificationAllPingsResponded
	NotificationPingReceived
	NotificationContactAdded
	NotificationContactRemoved
	NotificationRolesChanged
	NotificationSyncFailed
)

var notificationTypeNames = map[NotificationType]string{
	NotificationCheckIn:              "check_in",
	NotificationManualAlertActivated: "manual_alert_activated",
	NotificationManualAlertCleared:   "manual_alert_cleared",
	NotificationNonResponsive:        "non_responsive",
	NotificationPingSent:             "ping_sent",
	NotificationPingCleared:          "ping_cleared",
	NotificationPingResponded:        "ping_responded",
	NotificationAllPingsResponded:    "all_pings_responded",
	NotificationPingReceived:         "ping_received",
	NotificationContactAdded:         "contact_added",
	NotificationContactRemoved:       "contact_removed",
	NotificationRolesChanged:         "roles_changed",
	NotificationSyncFailed:           "sync_failed",
}

func (t NotificationType) String() string {
	if name, ok := notificationTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("notification_type(%d)", int(t))
}

func (t NotificationType) MarshalText() ([]byte, error) {
	name, ok := notificationTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown notification type: %d", int(t))
	}
	return []byte(name), nil
}

func (t *NotificationType) UnmarshalText(b []byte) error {
	for typ, name := range notificationTypeNames {
		if name == string(b) {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown notification type: %q", string(b))
}

// NotificationEvent 通知历史记录（不可变）
type NotificationEvent struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
}
