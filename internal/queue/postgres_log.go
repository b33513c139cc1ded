package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lifesignal-sync/internal/models"
)

const createOfflineActionsTable = `
CREATE TABLE IF NOT EXISTS offline_actions (
	seq               BIGSERIAL PRIMARY KEY,
	action_id         TEXT NOT NULL UNIQUE,
	kind              TEXT NOT NULL,
	target_contact_id TEXT NOT NULL DEFAULT '',
	payload           JSONB,
	enqueued_at       TIMESTAMPTZ NOT NULL
)`

// PostgresActionLog offline_actions 表实现，按 seq 保序
type PostgresActionLog struct {
	db       *sql.DB
	capacity int
}

// NewPostgresActionLog 创建 Postgres 队列（不建表，见 EnsureSchema）
func NewPostgresActionLog(db *sql.DB, capacity int) *PostgresActionLog {
	return &PostgresActionLog{db: db, capacity: capacity}
}

// EnsureSchema 建表
func (l *PostgresActionLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createOfflineActionsTable); err != nil {
		return fmt.Errorf("failed to create offline_actions table: %w", err)
	}
	return nil
}

func (l *PostgresActionLog) Append(ctx context.Context, action models.OfflineAction) error {
	if action.ID == "" {
		return ErrInvalidInput
	}
	if l.capacity > 0 {
		n, err := l.Len(ctx)
		if err != nil {
			return err
		}
		if atCapacity(n, l.capacity) {
			return ErrQueueFull
		}
	}

	kind, err := action.Kind.MarshalText()
	if err != nil {
		return err
	}
	var payload any
	if len(action.Payload) > 0 {
		payload = []byte(action.Payload)
	}

	query := `
		INSERT INTO offline_actions (action_id, kind, target_contact_id, payload, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := l.db.ExecContext(ctx, query,
		action.ID,
		string(kind),
		action.TargetContactID,
		payload,
		action.EnqueuedAt,
	); err != nil {
		return fmt.Errorf("failed to insert offline action: %w", err)
	}
	return nil
}

func (l *PostgresActionLog) Peek(ctx context.Context) (models.OfflineAction, bool, error) {
	query := `
		SELECT action_id, kind, target_contact_id, payload, enqueued_at
		FROM offline_actions
		ORDER BY seq
		LIMIT 1
	`
	action, err := scanAction(l.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return models.OfflineAction{}, false, nil
	}
	if err != nil {
		return models.OfflineAction{}, false, fmt.Errorf("failed to query queue head: %w", err)
	}
	return action, true, nil
}

func (l *PostgresActionLog) Remove(ctx context.Context, id string) error {
	query := `
		DELETE FROM offline_actions
		WHERE action_id = $1
		  AND seq = (SELECT MIN(seq) FROM offline_actions)
	`
	if _, err := l.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete offline action %s: %w", id, err)
	}
	return nil
}

func (l *PostgresActionLog) List(ctx context.Context) ([]models.OfflineAction, error) {
	query := `
		SELECT action_id, kind, target_contact_id, payload, enqueued_at
		FROM offline_actions
		ORDER BY seq
	`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query offline actions: %w", err)
	}
	defer rows.Close()

	var out []models.OfflineAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offline action: %w", err)
		}
		out = append(out, action)
	}
	return out, rows.Err()
}

func (l *PostgresActionLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count offline actions: %w", err)
	}
	return n, nil
}

func (l *PostgresActionLog) Close() error {
	return l.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (models.OfflineAction, error) {
	var (
		action  models.OfflineAction
		kind    string
		payload []byte
	)
	if err := row.Scan(&action.ID, &kind, &action.TargetContactID, &payload, &action.EnqueuedAt); err != nil {
		return models.OfflineAction{}, err
	}
	if err := action.Kind.UnmarshalText([]byte(kind)); err != nil {
		return models.OfflineAction{}, err
	}
	if len(payload) > 0 {
		action.Payload = json.RawMessage(payload)
	}
	return action, nil
}
