package store

import (
	"errors"
	"testing"
	"time"

	"lifesignal-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, contacts ...models.Contact) *ContactStore {
	t.Helper()
	s := NewContactStore(zap.NewNop())
	for _, c := range contacts {
		_, err := s.Apply(AddContact{Contact: c})
		require.NoError(t, err)
	}
	return s
}

func dependent(id, name string) models.Contact {
	return models.Contact{ID: id, DisplayName: name, IsDependent: true}
}

func TestContactStore_SetRoles_RejectsRemovingLastRole(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"))

	_, err := s.Apply(SetRoles{ID: "c1", IsResponder: false, IsDependent: false})

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrWouldRemoveLastRole))
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, models.ValidationWouldRemoveLastRole, verr.Kind)
	assert.Equal(t, "c1", verr.ContactID)

	got, ok := s.Get("c1")
	require.True(t, ok)
	assert.True(t, got.IsDependent)
	assert.False(t, got.IsResponder)
}

func TestContactStore_AddContact_Validation(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"))

	_, err := s.Apply(AddContact{Contact: models.Contact{ID: "c2"}})
	assert.ErrorIs(t, err, models.ErrWouldRemoveLastRole)

	_, err = s.Apply(AddContact{Contact: dependent("c1", "Again")})
	assert.ErrorIs(t, err, models.ErrContactExists)

	_, err = s.Apply(ClearOutgoingPing{ID: "missing"})
	assert.ErrorIs(t, err, models.ErrContactNotFound)

	assert.Equal(t, 1, s.Len())
}

func TestContactStore_SetRoles_DropsPingOfRemovedRole(t *testing.T) {
	c := models.Contact{ID: "c1", IsResponder: true, IsDependent: true}
	s := newTestStore(t, c)
	_, err := s.Apply(SetOutgoingPing{ID: "c1", At: baseTime})
	require.NoError(t, err)
	_, err = s.Apply(SetIncomingPing{ID: "c1", At: baseTime})
	require.NoError(t, err)

	got, err := s.Apply(SetRoles{ID: "c1", IsResponder: true, IsDependent: false})
	require.NoError(t, err)

	assert.False(t, got.HasOutgoingPing)
	assert.Nil(t, got.OutgoingPingTimestamp)
	assert.True(t, got.HasIncomingPing)
}

func TestContactStore_ManualAlertTimestamp(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"))

	got, err := s.Apply(SetManualAlert{ID: "c1", Active: true, At: baseTime})
	require.NoError(t, err)
	require.NotNil(t, got.ManualAlertTimestamp)
	assert.True(t, got.ManualAlertTimestamp.Equal(baseTime))

	// true→true 不刷新时间戳
	got, err = s.Apply(SetManualAlert{ID: "c1", Active: true, At: baseTime.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, got.ManualAlertTimestamp.Equal(baseTime))

	got, err = s.Apply(SetManualAlert{ID: "c1", Active: false, At: baseTime.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, got.ManualAlertActive)
	assert.Nil(t, got.ManualAlertTimestamp)
}

func TestContactStore_ReturnsCopies(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"))
	_, err := s.Apply(RecordCheckIn{ID: "c1", At: baseTime})
	require.NoError(t, err)

	got, _ := s.Get("c1")
	*got.LastCheckIn = baseTime.Add(time.Hour)
	got.DisplayName = "changed"

	again, _ := s.Get("c1")
	assert.True(t, again.LastCheckIn.Equal(baseTime))
	assert.Equal(t, "Amy", again.DisplayName)
}

func TestContactStore_SpeculateUndo_RestoresSnapshot(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"), dependent("c2", "Bob"), dependent("c3", "Cid"))

	_, rb, err := s.Speculate(RemoveContact{ID: "c2"})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	assert.Equal(t, 1, rb.Undo())
	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	// 重复撤销无效果
	assert.Equal(t, 0, rb.Undo())
}

func TestContactStore_Undo_SkipsWhenModifiedSince(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"))

	_, rb, err := s.Speculate(SetOutgoingPing{ID: "c1", At: baseTime})
	require.NoError(t, err)

	// 远端权威更新在撤销前到达
	remote := dependent("c1", "Amy")
	remote.HasOutgoingPing = true
	remote.OutgoingPingTimestamp = models.TimePtr(baseTime.Add(time.Second))
	_, err = s.Apply(ApplyRemote{Contact: remote})
	require.NoError(t, err)

	assert.Equal(t, 0, rb.Undo())
	got, _ := s.Get("c1")
	assert.True(t, got.HasOutgoingPing)
	assert.True(t, got.OutgoingPingTimestamp.Equal(baseTime.Add(time.Second)))
}

func TestContactStore_SpeculateAll_IsAtomic(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"), dependent("c2", "Bob"))

	// c2 的修改会违反角色不变式，整体不生效
	_, _, err := s.SpeculateAll(
		func(models.Contact) bool { return true },
		func(c models.Contact) Mutation {
			if c.ID == "c2" {
				return SetRoles{ID: c.ID}
			}
			return SetRoles{ID: c.ID, IsResponder: true, IsDependent: true}
		},
	)
	require.ErrorIs(t, err, models.ErrWouldRemoveLastRole)

	for _, c := range s.All() {
		assert.False(t, c.IsResponder, c.ID)
	}
}

func TestContactStore_ApplyAll_OnlyMatching(t *testing.T) {
	s := newTestStore(t,
		models.Contact{ID: "r1", DisplayName: "Rae", IsResponder: true},
		models.Contact{ID: "r2", DisplayName: "Sam", IsResponder: true},
		dependent("c1", "Amy"),
	)
	_, err := s.Apply(SetIncomingPing{ID: "r1", At: baseTime})
	require.NoError(t, err)

	out, err := s.ApplyAll(
		func(c models.Contact) bool { return c.HasIncomingPing },
		func(c models.Contact) Mutation { return ClearIncomingPing{ID: c.ID} },
	)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].ID)
	assert.False(t, out[0].HasIncomingPing)

	// 再次执行没有匹配项
	out, err = s.ApplyAll(
		func(c models.Contact) bool { return c.HasIncomingPing },
		func(c models.Contact) Mutation { return ClearIncomingPing{ID: c.ID} },
	)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestContactStore_Observers_ReceiveChangesInOrder(t *testing.T) {
	s := newTestStore(t)
	var seen []string
	s.Subscribe(func(ch Change) {
		switch ch.Mutation.(type) {
		case AddContact:
			seen = append(seen, "add:"+ch.After.ID)
		case SetOutgoingPing:
			seen = append(seen, "ping:"+ch.After.ID)
		case RemoveContact:
			seen = append(seen, "remove:"+ch.Before.ID)
		}
	})

	_, err := s.Apply(AddContact{Contact: dependent("c1", "Amy")})
	require.NoError(t, err)
	_, err = s.Apply(SetOutgoingPing{ID: "c1", At: baseTime})
	require.NoError(t, err)
	_, err = s.Apply(RemoveContact{ID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"add:c1", "ping:c1", "remove:c1"}, seen)
}

func TestContactStore_Replace(t *testing.T) {
	s := newTestStore(t, dependent("c1", "Amy"), dependent("c2", "Bob"))
	var changes int
	s.Subscribe(func(Change) { changes++ })

	err := s.Replace([]models.Contact{dependent("c3", "Cid"), dependent("c1", "Amy")})
	require.NoError(t, err)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "c3", all[0].ID)
	assert.Equal(t, "c1", all[1].ID)
	// c2 删除 + c3 新增；c1 未变化不通知
	assert.Equal(t, 2, changes)

	err = s.Replace([]models.Contact{{ID: "bad"}})
	assert.ErrorIs(t, err, models.ErrWouldRemoveLastRole)
	assert.Equal(t, 2, s.Len())
}

func TestContactStore_RefreshDerived(t *testing.T) {
	c := dependent("c1", "Amy")
	c.LastCheckIn = models.TimePtr(baseTime)
	c.CheckInInterval = time.Hour
	c.IsNonResponsive = true // 过期的存储值
	s := newTestStore(t, c)

	assert.Equal(t, 1, s.RefreshDerived(baseTime.Add(30*time.Minute)))
	got, _ := s.Get("c1")
	assert.False(t, got.IsNonResponsive)

	assert.Equal(t, 1, s.RefreshDerived(baseTime.Add(2*time.Hour)))
	got, _ = s.Get("c1")
	assert.True(t, got.IsNonResponsive)

	assert.Equal(t, 0, s.RefreshDerived(baseTime.Add(3*time.Hour)))
}
