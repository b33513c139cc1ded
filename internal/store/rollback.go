package store

import (
	"lifesignal-sync/internal/models"

	"go.uber.org/zap"
)

type rollbackItem struct {
	id     string
	before *models.Contact // nil 表示预提交前不存在
	index  int             // 预提交前在 order 中的位置
	rev    uint64          // 预提交后的版本号
}

// Rollback 撤销一次预提交
// 若联系人在预提交之后又被修改过（例如远端权威更新），对应条目不会被撤销
type Rollback struct {
	store *ContactStore
	items []rollbackItem
	done  bool
}

// Undo 原子地撤销，返回实际恢复的联系人数量；重复调用无效果
func (r *Rollback) Undo() int {
	if r == nil || r.store == nil {
		return 0
	}
	s := r.store
	s.mu.Lock()
	if r.done {
		s.mu.Unlock()
		return 0
	}
	r.done = true

	var changes []Change
	for i := len(r.items) - 1; i >= 0; i-- {
		item := r.items[i]
		if s.revs[item.id] != item.rev {
			s.logger.Debug("rollback skipped, contact modified since speculative apply",
				zap.String("contact_id", item.id),
			)
			continue
		}

		change := Change{Rollback: true}
		if cur, ok := s.contacts[item.id]; ok {
			before := cur.Clone()
			change.Before = &before
		}
		if item.before == nil {
			s.removeLocked(item.id)
			change.Mutation = RemoveContact{ID: item.id}
		} else {
			restored := item.before.Clone()
			s.putLocked(restored, item.index)
			change.Mutation = ApplyRemote{Contact: restored}
			after := restored.Clone()
			change.After = &after
		}
		s.rev++
		s.revs[item.id] = s.rev
		changes = append(changes, change)
	}
	s.unlockAndNotify(changes)
	return len(changes)
}

// Discard 放弃回滚能力（远端已确认）
func (r *Rollback) Discard() {
	if r == nil || r.store == nil {
		return
	}
	r.store.mu.Lock()
	r.done = true
	r.store.mu.Unlock()
}
