package queue

import (
	"context"
	"database/sql"
	"testing"

	"lifesignal-sync/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T, capacity int) (*sql.DB, sqlmock.Sqlmock, *PostgresActionLog) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresActionLog(db, capacity)
}

var actionColumns = []string{"action_id", "kind", "target_contact_id", "payload", "enqueued_at"}

func TestPostgresActionLog_Append(t *testing.T) {
	db, mock, l := setupMockDB(t, 0)
	defer db.Close()

	a, err := models.NewOfflineAction(models.ActionUpdateRoles, "c1", models.RolesPayload{IsResponder: true}, baseTime)
	require.NoError(t, err)

	// 不限长度时不查询 COUNT
	mock.ExpectExec(`INSERT INTO offline_actions`).
		WithArgs(a.ID, "update_roles", "c1", sqlmock.AnyArg(), baseTime).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, l.Append(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActionLog_AppendFull(t *testing.T) {
	db, mock, l := setupMockDB(t, 2)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	err := l.Append(context.Background(), newAction(t, models.ActionSendPing, "c1"))

	assert.ErrorIs(t, err, ErrQueueFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActionLog_PeekAndRemove(t *testing.T) {
	db, mock, l := setupMockDB(t, 0)
	defer db.Close()

	mock.ExpectQuery(`SELECT action_id, kind, target_contact_id, payload, enqueued_at`).
		WillReturnRows(sqlmock.NewRows(actionColumns).
			AddRow("act-1", "send_ping", "c9", nil, baseTime))
	mock.ExpectExec(`DELETE FROM offline_actions`).
		WithArgs("act-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	head, ok, err := l.Peek(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "act-1", head.ID)
	assert.Equal(t, models.ActionSendPing, head.Kind)
	assert.Equal(t, "c9", head.TargetContactID)
	assert.Empty(t, head.Payload)

	require.NoError(t, l.Remove(ctx, head.ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActionLog_PeekEmpty(t *testing.T) {
	db, mock, l := setupMockDB(t, 0)
	defer db.Close()

	mock.ExpectQuery(`SELECT action_id`).
		WillReturnRows(sqlmock.NewRows(actionColumns))

	_, ok, err := l.Peek(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActionLog_ListDecodesPayload(t *testing.T) {
	db, mock, l := setupMockDB(t, 0)
	defer db.Close()

	mock.ExpectQuery(`SELECT action_id`).
		WillReturnRows(sqlmock.NewRows(actionColumns).
			AddRow("act-1", "add_contact", "c1", []byte(`{"is_responder":false,"is_dependent":true}`), baseTime).
			AddRow("act-2", "respond_to_all_pings", "", nil, baseTime))

	items, err := l.List(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 2)
	var roles models.RolesPayload
	require.NoError(t, items[0].DecodePayload(&roles))
	assert.True(t, roles.IsDependent)
	assert.Equal(t, models.ActionRespondToAllPings, items[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActionLog_UnknownKind(t *testing.T) {
	db, mock, l := setupMockDB(t, 0)
	defer db.Close()

	mock.ExpectQuery(`SELECT action_id`).
		WillReturnRows(sqlmock.NewRows(actionColumns).AddRow("act-1", "teleport", "c1", nil, baseTime))

	_, _, err := l.Peek(context.Background())

	assert.Error(t, err)
}
