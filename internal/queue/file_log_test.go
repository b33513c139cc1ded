package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lifesignal-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileActionLog_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "queue.json")

	l, err := NewFileActionLog(path, 4)
	require.NoError(t, err)
	roles, err := models.NewOfflineAction(models.ActionUpdateRoles, "c1", models.RolesPayload{IsDependent: true}, baseTime)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, roles))
	require.NoError(t, l.Append(ctx, newAction(t, models.ActionSendPing, "c2")))

	reopened, err := NewFileActionLog(path, 4)
	require.NoError(t, err)
	items, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.ActionUpdateRoles, items[0].Kind)
	assert.True(t, items[0].EnqueuedAt.Equal(baseTime))

	var payload models.RolesPayload
	require.NoError(t, items[0].DecodePayload(&payload))
	assert.True(t, payload.IsDependent)
	assert.False(t, payload.IsResponder)

	require.NoError(t, reopened.Remove(ctx, items[0].ID))
	again, err := NewFileActionLog(path, 4)
	require.NoError(t, err)
	n, err := again.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileActionLog_Capacity(t *testing.T) {
	ctx := context.Background()
	l, err := NewFileActionLog(filepath.Join(t.TempDir(), "queue.json"), 1)
	require.NoError(t, err)

	require.NoError(t, l.Append(ctx, newAction(t, models.ActionSendPing, "c1")))
	assert.ErrorIs(t, l.Append(ctx, newAction(t, models.ActionSendPing, "c2")), ErrQueueFull)
}

func TestFileActionLog_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileActionLog(path, 4)
	assert.Error(t, err)
}

func TestNewFileActionLog_EmptyPath(t *testing.T) {
	_, err := NewFileActionLog("  ", 4)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
