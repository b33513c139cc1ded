// Package store 当前登录用户的联系人集合，所有读写经由同一个互斥锁串行化。
package store

import (
	"sync"
	"time"

	"lifesignal-sync/internal/classifier"
	"lifesignal-sync/internal/models"

	"go.uber.org/zap"
)

// Change 一次已提交的修改
// After 为 nil 表示联系人被删除；Before 为 nil 表示新增
type Change struct {
	Mutation Mutation
	Before   *models.Contact
	After    *models.Contact
	Rollback bool
}

// Observer 修改提交后按提交顺序被调用；不得在回调中修改 store
type Observer func(Change)

// ContactStore 联系人存储
type ContactStore struct {
	mu       sync.RWMutex
	order    []string
	contacts map[string]models.Contact
	revs     map[string]uint64 // 每个联系人最后一次修改的版本号（删除后保留）
	rev      uint64

	notifyMu  sync.Mutex
	observers []Observer

	logger *zap.Logger
}

// NewContactStore 创建联系人存储
func NewContactStore(logger *zap.Logger) *ContactStore {
	return &ContactStore{
		contacts: make(map[string]models.Contact),
		revs:     make(map[string]uint64),
		logger:   logger,
	}
}

// Subscribe 注册观察者
func (s *ContactStore) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// Get 获取联系人副本
func (s *ContactStore) Get(id string) (models.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return models.Contact{}, false
	}
	return c.Clone(), true
}

// All 按插入顺序返回全部联系人副本
func (s *ContactStore) All() []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Contact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.contacts[id].Clone())
	}
	return out
}

// Len 联系人数量
func (s *ContactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Apply 应用单个修改，返回修改后的联系人（删除时返回被删除的联系人）
func (s *ContactStore) Apply(m Mutation) (models.Contact, error) {
	out, _, err := s.Speculate(m)
	return out, err
}

// Speculate 应用修改并返回可回滚句柄（两阶段：本地预提交，远端确认失败时 Undo）
func (s *ContactStore) Speculate(m Mutation) (models.Contact, *Rollback, error) {
	return s.SpeculateWhen(m, nil)
}

// SpeculateWhen 与 Speculate 相同，但先在同一把锁内对当前联系人执行 check；
// check 返回错误时不做任何修改。联系人不存在时直接返回 ContactNotFound
func (s *ContactStore) SpeculateWhen(m Mutation, check func(cur models.Contact) error) (models.Contact, *Rollback, error) {
	s.mu.Lock()
	if check != nil {
		cur, ok := s.contacts[m.ContactID()]
		if !ok {
			s.mu.Unlock()
			return models.Contact{}, nil, models.NewValidationError(models.ValidationContactNotFound, m.ContactID())
		}
		if err := check(cur.Clone()); err != nil {
			s.mu.Unlock()
			return models.Contact{}, nil, err
		}
	}
	change, item, err := s.commitLocked(m)
	if err != nil {
		s.mu.Unlock()
		return models.Contact{}, nil, err
	}
	s.unlockAndNotify([]Change{change})

	out := change.After
	if out == nil {
		out = change.Before
	}
	return out.Clone(), &Rollback{store: s, items: []rollbackItem{item}}, nil
}

// ApplyAll 对满足 filter 的所有联系人应用 build 生成的修改，全部成功或全部不生效
func (s *ContactStore) ApplyAll(filter func(models.Contact) bool, build func(models.Contact) Mutation) ([]models.Contact, error) {
	out, _, err := s.SpeculateAll(filter, build)
	return out, err
}

// SpeculateAll ApplyAll 的可回滚版本
func (s *ContactStore) SpeculateAll(filter func(models.Contact) bool, build func(models.Contact) Mutation) ([]models.Contact, *Rollback, error) {
	s.mu.Lock()

	var muts []Mutation
	for _, id := range s.order {
		c := s.contacts[id]
		if filter(c) {
			muts = append(muts, build(c))
		}
	}

	// 先整体校验，再提交，避免部分生效
	for _, m := range muts {
		cur, ok := s.contacts[m.ContactID()]
		var curPtr *models.Contact
		if ok {
			curPtr = &cur
		}
		if _, _, err := mutate(curPtr, m); err != nil {
			s.mu.Unlock()
			return nil, nil, err
		}
	}

	changes := make([]Change, 0, len(muts))
	items := make([]rollbackItem, 0, len(muts))
	for _, m := range muts {
		change, item, err := s.commitLocked(m)
		if err != nil {
			// 已在上面校验过，这里不应出现
			s.logger.Error("unexpected mutation failure after validation",
				zap.String("contact_id", m.ContactID()),
				zap.Error(err),
			)
			continue
		}
		changes = append(changes, change)
		items = append(items, item)
	}
	s.unlockAndNotify(changes)

	out := make([]models.Contact, 0, len(changes))
	for _, ch := range changes {
		if ch.After != nil {
			out = append(out, ch.After.Clone())
		}
	}
	return out, &Rollback{store: s, items: items}, nil
}

// Replace 用远端全量快照替换当前集合；快照中缺失的联系人被删除
func (s *ContactStore) Replace(contacts []models.Contact) error {
	seen := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		if c.ID == "" {
			return &models.ValidationError{Kind: models.ValidationInvalidContact, Detail: "empty contact id in snapshot"}
		}
		if _, dup := seen[c.ID]; dup {
			return models.NewValidationError(models.ValidationContactExists, c.ID)
		}
		if !c.HasRole() {
			return models.NewValidationError(models.ValidationWouldRemoveLastRole, c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	s.mu.Lock()
	var changes []Change
	for _, id := range append([]string(nil), s.order...) {
		if _, keep := seen[id]; keep {
			continue
		}
		if change, _, err := s.commitLocked(RemoveContact{ID: id}); err == nil {
			changes = append(changes, change)
		}
	}
	for _, c := range contacts {
		change, _, err := s.commitLocked(ApplyRemote{Contact: c})
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if change.Before == nil || !sameContact(*change.Before, *change.After) {
			changes = append(changes, change)
		}
	}
	// 以快照顺序为准
	order := make([]string, 0, len(contacts))
	for _, c := range contacts {
		order = append(order, c.ID)
	}
	s.order = order
	s.unlockAndNotify(changes)

	s.logger.Debug("contact snapshot applied", zap.Int("contact_count", len(contacts)))
	return nil
}

// RefreshDerived 按 now 重新计算所有联系人的 IsNonResponsive，返回发生变化的数量
func (s *ContactStore) RefreshDerived(now time.Time) int {
	s.mu.Lock()
	var changes []Change
	for _, id := range s.order {
		c := s.contacts[id]
		expired := classifier.IsExpired(c, now)
		if c.IsNonResponsive == expired {
			continue
		}
		if change, _, err := s.commitLocked(SetNonResponsive{ID: id, Value: expired}); err == nil {
			changes = append(changes, change)
		}
	}
	s.unlockAndNotify(changes)
	return len(changes)
}

// commitLocked 调用方持有 s.mu
func (s *ContactStore) commitLocked(m Mutation) (Change, rollbackItem, error) {
	id := m.ContactID()
	cur, exists := s.contacts[id]
	var curPtr *models.Contact
	if exists {
		curPtr = &cur
	}

	next, removed, err := mutate(curPtr, m)
	if err != nil {
		return Change{}, rollbackItem{}, err
	}

	item := rollbackItem{id: id, index: s.indexLocked(id)}
	change := Change{Mutation: m}
	if exists {
		before := cur.Clone()
		item.before = &before
		change.Before = &before
	}

	if removed {
		s.removeLocked(id)
	} else {
		s.putLocked(next, -1)
		after := next.Clone()
		change.After = &after
	}

	s.rev++
	s.revs[id] = s.rev
	item.rev = s.rev
	return change, item, nil
}

func (s *ContactStore) indexLocked(id string) int {
	for i, v := range s.order {
		if v == id {
			return i
		}
	}
	return -1
}

// putLocked 写入联系人；新联系人插入到 index（-1 表示末尾）
func (s *ContactStore) putLocked(c models.Contact, index int) {
	if _, ok := s.contacts[c.ID]; !ok {
		if index < 0 || index > len(s.order) {
			s.order = append(s.order, c.ID)
		} else {
			s.order = append(s.order, "")
			copy(s.order[index+1:], s.order[index:])
			s.order[index] = c.ID
		}
	}
	s.contacts[c.ID] = c
}

func (s *ContactStore) removeLocked(id string) {
	delete(s.contacts, id)
	if i := s.indexLocked(id); i >= 0 {
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
}

// unlockAndNotify 释放 s.mu 并按提交顺序通知观察者
// 先拿 notifyMu 再释放 mu，保证不同提交的通知顺序与提交顺序一致
func (s *ContactStore) unlockAndNotify(changes []Change) {
	observers := append([]Observer(nil), s.observers...)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, ch := range changes {
		for _, obs := range observers {
			obs(ch)
		}
	}
}

func sameContact(a, b models.Contact) bool {
	return a.ID == b.ID &&
		a.DisplayName == b.DisplayName &&
		a.PhoneNumber == b.PhoneNumber &&
		a.Note == b.Note &&
		a.IsResponder == b.IsResponder &&
		a.IsDependent == b.IsDependent &&
		sameTime(a.LastCheckIn, b.LastCheckIn) &&
		a.CheckInInterval == b.CheckInInterval &&
		a.ManualAlertActive == b.ManualAlertActive &&
		sameTime(a.ManualAlertTimestamp, b.ManualAlertTimestamp) &&
		a.IsNonResponsive == b.IsNonResponsive &&
		a.HasOutgoingPing == b.HasOutgoingPing &&
		sameTime(a.OutgoingPingTimestamp, b.OutgoingPingTimestamp) &&
		a.HasIncomingPing == b.HasIncomingPing &&
		sameTime(a.IncomingPingTimestamp, b.IncomingPingTimestamp)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
