// Package ping ping 协议：本地校验 + 乐观修改。
//
// 双方的 ping 标志分别存储在两个用户各自的联系人列表中，只通过远端存储对齐；
// 这里只维护本用户一侧，短暂的不一致由后续权威更新修复，不在本地补偿。
package ping

import (
	"time"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/store"

	"go.uber.org/zap"
)

// Result 一次乐观修改的结果；Rollback 用于远端拒绝时撤销
type Result struct {
	Contact  models.Contact
	Rollback *store.Rollback
}

// Handler ping 协议处理器
type Handler struct {
	store  *store.ContactStore
	now    func() time.Time
	logger *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(s *store.ContactStore, logger *zap.Logger) *Handler {
	return &Handler{store: s, now: time.Now, logger: logger}
}

// SetClock 替换时钟（测试用）
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// SendPing 只能 ping dependent
func (h *Handler) SendPing(contactID string) (Result, error) {
	at := h.now()
	c, rb, err := h.store.SpeculateWhen(store.SetOutgoingPing{ID: contactID, At: at}, func(cur models.Contact) error {
		if !cur.IsDependent {
			return models.NewValidationError(models.ValidationNotEligible, contactID)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	h.logger.Debug("ping sent (local)", zap.String("contact_id", contactID), zap.Time("at", at))
	return Result{Contact: c, Rollback: rb}, nil
}

// ClearPing 清除本用户发出的 ping
func (h *Handler) ClearPing(contactID string) (Result, error) {
	c, rb, err := h.store.SpeculateWhen(store.ClearOutgoingPing{ID: contactID}, func(cur models.Contact) error {
		if !cur.HasOutgoingPing {
			return models.NewValidationError(models.ValidationNoActivePing, contactID)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	h.logger.Debug("ping cleared (local)", zap.String("contact_id", contactID))
	return Result{Contact: c, Rollback: rb}, nil
}

// RespondToPing 回应某个 responder 发来的 ping
func (h *Handler) RespondToPing(contactID string) (Result, error) {
	c, rb, err := h.store.SpeculateWhen(store.ClearIncomingPing{ID: contactID}, func(cur models.Contact) error {
		if !cur.HasIncomingPing {
			return models.NewValidationError(models.ValidationNoActivePing, contactID)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	h.logger.Debug("ping responded (local)", zap.String("contact_id", contactID))
	return Result{Contact: c, Rollback: rb}, nil
}

// BatchResult RespondToAllPings 的结果
type BatchResult struct {
	Cleared  []models.Contact
	Rollback *store.Rollback
}

// Count 清除的数量
func (r BatchResult) Count() int {
	return len(r.Cleared)
}

// RespondToAllPings 清除所有收到的 ping，可能为 0 个
func (h *Handler) RespondToAllPings() (BatchResult, error) {
	cleared, rb, err := h.store.SpeculateAll(
		func(c models.Contact) bool { return c.HasIncomingPing },
		func(c models.Contact) store.Mutation { return store.ClearIncomingPing{ID: c.ID} },
	)
	if err != nil {
		return BatchResult{}, err
	}
	h.logger.Debug("all pings responded (local)", zap.Int("count", len(cleared)))
	return BatchResult{Cleared: cleared, Rollback: rb}, nil
}
