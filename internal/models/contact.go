package models

import "time"

// Contact 与另一位用户的一条关系记录（当前登录用户视角）
// IsNonResponsive 为派生字段，排序/统计前必须由 classifier 重新计算
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PhoneNumber string `json:"phone_number"`
	Note        string `json:"note"`

	// 角色：至少一个为 true
	IsResponder bool `json:"is_responder"`
	IsDependent bool `json:"is_dependent"`

	// 签到
	LastCheckIn     *time.Time    `json:"last_check_in,omitempty"`
	CheckInInterval time.Duration `json:"check_in_interval"`

	// 手动报警
	ManualAlertActive    bool       `json:"manual_alert_active"`
	ManualAlertTimestamp *time.Time `json:"manual_alert_timestamp,omitempty"`

	IsNonResponsive bool `json:"is_non_responsive"`

	// 本用户 ping 了该联系人（仅 dependent 有意义）
	HasOutgoingPing       bool       `json:"has_outgoing_ping"`
	OutgoingPingTimestamp *time.Time `json:"outgoing_ping_timestamp,omitempty"`

	// 该联系人 ping 了本用户（仅 responder 有意义）
	HasIncomingPing       bool       `json:"has_incoming_ping"`
	IncomingPingTimestamp *time.Time `json:"incoming_ping_timestamp,omitempty"`
}

// HasRole 角色不变式
func (c Contact) HasRole() bool {
	return c.IsResponder || c.IsDependent
}

// ExpiresAt 签到过期时间；缺少 LastCheckIn 或 CheckInInterval 时返回 nil
func (c Contact) ExpiresAt() *time.Time {
	if c.LastCheckIn == nil || c.CheckInInterval <= 0 {
		return nil
	}
	t := c.LastCheckIn.Add(c.CheckInInterval)
	return &t
}

// Clone 深拷贝（时间指针单独复制，避免调用方修改存储内的值）
func (c Contact) Clone() Contact {
	out := c
	out.LastCheckIn = cloneTime(c.LastCheckIn)
	out.ManualAlertTimestamp = cloneTime(c.ManualAlertTimestamp)
	out.OutgoingPingTimestamp = cloneTime(c.OutgoingPingTimestamp)
	out.IncomingPingTimestamp = cloneTime(c.IncomingPingTimestamp)
	return out
}

// TimePtr 返回 t 的指针
func TimePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
