package consumer

import (
	"context"
	"testing"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newConsumer(t *testing.T, source Source) (*UpdateConsumer, *store.ContactStore) {
	t.Helper()
	s := store.NewContactStore(zap.NewNop())
	return NewUpdateConsumer(s, source, zap.NewNop()), s
}

func TestHandle_UpsertDeleteSnapshot(t *testing.T) {
	c, s := newConsumer(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, ContactUpdate{Op: OpUpsert, Contact: &models.Contact{ID: "c1", IsDependent: true}}))
	got, ok := s.Get("c1")
	require.True(t, ok)
	assert.True(t, got.IsDependent)

	require.NoError(t, c.Handle(ctx, ContactUpdate{Op: OpUpsert, Contact: &models.Contact{ID: "c1", IsResponder: true, HasIncomingPing: true}}))
	got, _ = s.Get("c1")
	assert.True(t, got.HasIncomingPing)
	assert.False(t, got.IsDependent)

	require.NoError(t, c.Handle(ctx, ContactUpdate{Op: OpDelete, ContactID: "c1"}))
	_, ok = s.Get("c1")
	assert.False(t, ok)

	// 重复删除不是错误
	require.NoError(t, c.Handle(ctx, ContactUpdate{Op: OpDelete, ContactID: "c1"}))

	require.NoError(t, c.Handle(ctx, ContactUpdate{Op: OpSnapshot, Contacts: []models.Contact{
		{ID: "a", IsDependent: true},
		{ID: "b", IsResponder: true},
	}}))
	assert.Equal(t, 2, s.Len())
}

func TestHandle_RejectsInvalid(t *testing.T) {
	c, s := newConsumer(t, nil)
	ctx := context.Background()

	assert.Error(t, c.Handle(ctx, ContactUpdate{Op: OpUpsert}))
	assert.Error(t, c.Handle(ctx, ContactUpdate{Op: OpDelete}))
	assert.ErrorIs(t, c.Handle(ctx, ContactUpdate{Op: OpUpsert, Contact: &models.Contact{ID: "x"}}), models.ErrWouldRemoveLastRole)
	assert.NoError(t, c.Handle(ctx, ContactUpdate{Op: "rename"}))
	assert.Zero(t, s.Len())
}
