package service

import (
	"lifesignal-sync/internal/classifier"
	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/ordering"
)

// Dependents 按当前排序方式排列的 dependent 列表
func (s *SyncService) Dependents() []models.Contact {
	return ordering.Order(s.store.All(), s.SortMode(), s.now())
}

// DependentsBy 指定排序方式（不改变默认排序方式）
func (s *SyncService) DependentsBy(mode models.SortMode) []models.Contact {
	return ordering.Order(s.store.All(), mode, s.now())
}

// Responders responder 列表
func (s *SyncService) Responders() []models.Contact {
	return ordering.OrderResponders(classifier.Recompute(s.store.All(), s.now()))
}

// Contact 单个联系人，IsNonResponsive 已按当前时间重新计算
func (s *SyncService) Contact(id string) (models.Contact, bool) {
	c, ok := s.store.Get(id)
	if !ok {
		return models.Contact{}, false
	}
	return classifier.Recompute([]models.Contact{c}, s.now())[0], true
}

// Summary 各分类的数量
func (s *SyncService) Summary() classifier.Summary {
	return classifier.Summarize(s.store.All(), s.now())
}

func (s *SyncService) SortMode() models.SortMode {
	s.modeMu.RLock()
	defer s.modeMu.RUnlock()
	return s.sortMode
}

func (s *SyncService) SetSortMode(mode models.SortMode) {
	s.modeMu.Lock()
	s.sortMode = mode
	s.modeMu.Unlock()
}
