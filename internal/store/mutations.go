package store

import (
	"fmt"
	"time"

	"lifesignal-sync/internal/models"
)

// Mutation 对单个联系人的修改；类型集合封闭，由 mutate 穷举处理
type Mutation interface {
	ContactID() string
	isMutation()
}

// AddContact 新增联系人
type AddContact struct {
	Contact models.Contact
}

// RemoveContact 删除联系人
type RemoveContact struct {
	ID string
}

// SetRoles 修改角色；移除 dependent 角色会清除 outgoing ping，移除 responder 角色会清除 incoming ping
type SetRoles struct {
	ID          string
	IsResponder bool
	IsDependent bool
}

// SetOutgoingPing 标记本用户已 ping 该联系人
type SetOutgoingPing struct {
	ID string
	At time.Time
}

// ClearOutgoingPing 清除本用户发出的 ping
type ClearOutgoingPing struct {
	ID string
}

// SetIncomingPing 标记该联系人 ping 了本用户
type SetIncomingPing struct {
	ID string
	At time.Time
}

// ClearIncomingPing 清除收到的 ping（已回应）
type ClearIncomingPing struct {
	ID string
}

// SetManualAlert 手动报警开关；时间戳仅在 false→true 时写入，true→false 时清除
type SetManualAlert struct {
	ID     string
	Active bool
	At     time.Time
}

// RecordCheckIn 记录签到
type RecordCheckIn struct {
	ID string
	At time.Time
}

// SetCheckInInterval 修改签到间隔
type SetCheckInInterval struct {
	ID       string
	Interval time.Duration
}

// UpdateDetails 修改展示信息；nil 字段保持不变
type UpdateDetails struct {
	ID          string
	DisplayName *string
	PhoneNumber *string
	Note        *string
}

// SetNonResponsive 写入派生状态，仅由 RefreshDerived 产生
type SetNonResponsive struct {
	ID    string
	Value bool
}

// ApplyRemote 以远端权威数据覆盖（不存在则新增）
type ApplyRemote struct {
	Contact models.Contact
}

func (m AddContact) ContactID() string         { return m.Contact.ID }
func (m RemoveContact) ContactID() string      { return m.ID }
func (m SetRoles) ContactID() string           { return m.ID }
func (m SetOutgoingPing) ContactID() string    { return m.ID }
func (m ClearOutgoingPing) ContactID() string  { return m.ID }
func (m SetIncomingPing) ContactID() string    { return m.ID }
func (m ClearIncomingPing) ContactID() string  { return m.ID }
func (m SetManualAlert) ContactID() string     { return m.ID }
func (m RecordCheckIn) ContactID() string      { return m.ID }
func (m SetCheckInInterval) ContactID() string { return m.ID }
func (m UpdateDetails) ContactID() string      { return m.ID }
func (m SetNonResponsive) ContactID() string   { return m.ID }
func (m ApplyRemote) ContactID() string        { return m.Contact.ID }

func (AddContact) isMutation()         {}
func (RemoveContact) isMutation()      {}
func (SetRoles) isMutation()           {}
func (SetOutgoingPing) isMutation()    {}
func (ClearOutgoingPing) isMutation()  {}
func (SetIncomingPing) isMutation()    {}
func (ClearIncomingPing) isMutation()  {}
func (SetManualAlert) isMutation()     {}
func (RecordCheckIn) isMutation()      {}
func (SetCheckInInterval) isMutation() {}
func (UpdateDetails) isMutation()      {}
func (SetNonResponsive) isMutation()   {}
func (ApplyRemote) isMutation()        {}

// mutate 计算修改后的联系人；removed=true 表示删除。cur 为 nil 表示联系人不存在
func mutate(cur *models.Contact, m Mutation) (next models.Contact, removed bool, err error) {
	id := m.ContactID()
	if id == "" {
		return models.Contact{}, false, &models.ValidationError{Kind: models.ValidationInvalidContact, Detail: "empty contact id"}
	}

	switch mm := m.(type) {
	case AddContact:
		if cur != nil {
			return models.Contact{}, false, models.NewValidationError(models.ValidationContactExists, id)
		}
		if !mm.Contact.HasRole() {
			return models.Contact{}, false, models.NewValidationError(models.ValidationWouldRemoveLastRole, id)
		}
		return normalize(mm.Contact.Clone()), false, nil

	case ApplyRemote:
		if !mm.Contact.HasRole() {
			return models.Contact{}, false, models.NewValidationError(models.ValidationWouldRemoveLastRole, id)
		}
		return normalize(mm.Contact.Clone()), false, nil
	}

	if cur == nil {
		return models.Contact{}, false, models.NewValidationError(models.ValidationContactNotFound, id)
	}
	next = cur.Clone()

	switch mm := m.(type) {
	case RemoveContact:
		return next, true, nil

	case SetRoles:
		if !mm.IsResponder && !mm.IsDependent {
			return models.Contact{}, false, models.NewValidationError(models.ValidationWouldRemoveLastRole, id)
		}
		next.IsResponder = mm.IsResponder
		next.IsDependent = mm.IsDependent
		next = normalize(next)

	case SetOutgoingPing:
		next.HasOutgoingPing = true
		next.OutgoingPingTimestamp = models.TimePtr(mm.At)

	case ClearOutgoingPing:
		next.HasOutgoingPing = false
		next.OutgoingPingTimestamp = nil

	case SetIncomingPing:
		next.HasIncomingPing = true
		next.IncomingPingTimestamp = models.TimePtr(mm.At)

	case ClearIncomingPing:
		next.HasIncomingPing = false
		next.IncomingPingTimestamp = nil

	case SetManualAlert:
		switch {
		case mm.Active && !next.ManualAlertActive:
			next.ManualAlertTimestamp = models.TimePtr(mm.At)
		case !mm.Active:
			next.ManualAlertTimestamp = nil
		}
		next.ManualAlertActive = mm.Active

	case RecordCheckIn:
		next.LastCheckIn = models.TimePtr(mm.At)

	case SetCheckInInterval:
		if mm.Interval < 0 {
			return models.Contact{}, false, &models.ValidationError{Kind: models.ValidationInvalidContact, ContactID: id, Detail: "negative check-in interval"}
		}
		next.CheckInInterval = mm.Interval

	case SetNonResponsive:
		next.IsNonResponsive = mm.Value

	case UpdateDetails:
		if mm.DisplayName != nil {
			next.DisplayName = *mm.DisplayName
		}
		if mm.PhoneNumber != nil {
			next.PhoneNumber = *mm.PhoneNumber
		}
		if mm.Note != nil {
			next.Note = *mm.Note
		}

	default:
		return models.Contact{}, false, fmt.Errorf("unsupported mutation %T", m)
	}

	return next, false, nil
}

// normalize ping 标志只在对应角色下有意义
func normalize(c models.Contact) models.Contact {
	if !c.IsDependent {
		c.HasOutgoingPing = false
		c.OutgoingPingTimestamp = nil
	}
	if !c.IsResponder {
		c.HasIncomingPing = false
		c.IncomingPingTimestamp = nil
	}
	if !c.ManualAlertActive {
		c.ManualAlertTimestamp = nil
	}
	return c
}
