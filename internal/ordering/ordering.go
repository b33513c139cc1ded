// Package ordering dependent / responder 列表的展示顺序。纯函数，不加锁。
package ordering

import (
	"sort"
	"strings"
	"time"

	"lifesignal-sync/internal/classifier"
	"lifesignal-sync/internal/models"
)

// Order dependent 排序：
//  1. 重新分类（不信任存储的 IsNonResponsive）
//  2. 按 ManualAlert / NonResponsive / Regular 分桶
//  3. 桶内已 ping 的在前
//  4. 子组内按 mode 排序
//
// 非 dependent 联系人不出现在结果中。返回的是副本，IsNonResponsive 已按 now 重写。
func Order(contacts []models.Contact, mode models.SortMode, now time.Time) []models.Contact {
	type ranked struct {
		contact models.Contact
		cl      classifier.Classification
	}

	// 分桶：[category][pinged? 0 : 1]
	var buckets [3][2][]ranked
	for _, c := range classifier.Recompute(contacts, now) {
		if !c.IsDependent {
			continue
		}
		cl := classifier.Classify(c, now)
		sub := 1
		if c.HasOutgoingPing {
			sub = 0
		}
		buckets[bucketIndex(cl.Category)][sub] = append(buckets[bucketIndex(cl.Category)][sub], ranked{contact: c, cl: cl})
	}

	out := make([]models.Contact, 0, len(contacts))
	for _, cat := range models.Categories {
		for sub := 0; sub < 2; sub++ {
			group := buckets[bucketIndex(cat)][sub]
			sort.SliceStable(group, func(i, j int) bool {
				return less(mode, group[i].contact, group[i].cl, group[j].contact, group[j].cl)
			})
			for _, r := range group {
				out = append(out, r.contact)
			}
		}
	}
	return out
}

func bucketIndex(c models.Category) int {
	switch c {
	case models.CategoryManualAlert:
		return 0
	case models.CategoryNonResponsive:
		return 1
	default:
		return 2
	}
}

func less(mode models.SortMode, a models.Contact, ac classifier.Classification, b models.Contact, bc classifier.Classification) bool {
	switch mode {
	case models.SortAlphabetical:
		return a.DisplayName < b.DisplayName
	case models.SortRecentlyAdded:
		return a.ID > b.ID
	case models.SortCountdown:
		fallthrough
	default:
		// 没有过期时间的排最后，并保持输入顺序（SliceStable）
		switch {
		case ac.ExpiresAt == nil:
			return false
		case bc.ExpiresAt == nil:
			return true
		default:
			return ac.ExpiresAt.Before(*bc.ExpiresAt)
		}
	}
}

// OrderResponders responder 排序：收到 ping 的在前（最近的在前），其余按名称（不区分大小写）
func OrderResponders(contacts []models.Contact) []models.Contact {
	var out []models.Contact
	for _, c := range contacts {
		if c.IsResponder {
			out = append(out, c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasIncomingPing != b.HasIncomingPing {
			return a.HasIncomingPing
		}
		if a.HasIncomingPing && a.IncomingPingTimestamp != nil && b.IncomingPingTimestamp != nil &&
			!a.IncomingPingTimestamp.Equal(*b.IncomingPingTimestamp) {
			return a.IncomingPingTimestamp.After(*b.IncomingPingTimestamp)
		}
		return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
	})
	return out
}
