// Package classifier 根据签到/报警时间戳计算联系人的紧急程度。
// 纯函数，无副作用，可在任意 goroutine 中调用。
package classifier

import (
	"time"

	"lifesignal-sync/internal/models"
)

// Classification 单个联系人的分类结果
type Classification struct {
	ExpiresAt *time.Time
	IsExpired bool
	Category  models.Category
}

// Classify 计算过期时间与分类
// 优先级：ManualAlert > NonResponsive > Regular
func Classify(c models.Contact, now time.Time) Classification {
	out := Classification{Category: models.CategoryRegular}
	out.ExpiresAt = c.ExpiresAt()
	if out.ExpiresAt != nil {
		out.IsExpired = out.ExpiresAt.Before(now)
	}

	switch {
	case c.ManualAlertActive:
		out.Category = models.CategoryManualAlert
	case out.IsExpired:
		out.Category = models.CategoryNonResponsive
	}
	return out
}

// IsExpired lastCheckIn + checkInInterval < now
func IsExpired(c models.Contact, now time.Time) bool {
	exp := c.ExpiresAt()
	return exp != nil && exp.Before(now)
}

// Recompute 返回副本，IsNonResponsive 按 now 重新计算（不信任已存储的值）
func Recompute(contacts []models.Contact, now time.Time) []models.Contact {
	out := make([]models.Contact, len(contacts))
	for i, c := range contacts {
		cc := c.Clone()
		cc.IsNonResponsive = IsExpired(cc, now)
		out[i] = cc
	}
	return out
}

// Summary 角标/概览计数
type Summary struct {
	Dependents           int
	Responders           int
	ManualAlert          int // dependent 中处于手动报警的数量
	NonResponsive        int // dependent 中签到过期（且未手动报警）的数量
	Regular              int
	PendingOutgoingPings int
	PendingIncomingPings int
	RespondersWithAlert  int // responder 中处于手动报警的数量
	NextExpiration       *time.Time
}

// Summarize 统计前先重新分类
func Summarize(contacts []models.Contact, now time.Time) Summary {
	var s Summary
	for _, c := range Recompute(contacts, now) {
		if c.IsResponder {
			s.Responders++
			if c.HasIncomingPing {
				s.PendingIncomingPings++
			}
			if c.ManualAlertActive {
				s.RespondersWithAlert++
			}
		}
		if !c.IsDependent {
			continue
		}
		s.Dependents++
		if c.HasOutgoingPing {
			s.PendingOutgoingPings++
		}
		cl := Classify(c, now)
		switch cl.Category {
		case models.CategoryManualAlert:
			s.ManualAlert++
		case models.CategoryNonResponsive:
			s.NonResponsive++
		case models.CategoryRegular:
			s.Regular++
		}
		if cl.ExpiresAt != nil && !cl.IsExpired {
			if s.NextExpiration == nil || cl.ExpiresAt.Before(*s.NextExpiration) {
				s.NextExpiration = cl.ExpiresAt
			}
		}
	}
	return s
}
