// Package consumer 消费远端权威更新流，把联系人变化写回本地 store。
package consumer

import (
	"context"
	"errors"
	"fmt"

	"lifesignal-sync/internal/models"
	"lifesignal-sync/internal/store"

	"go.uber.org/zap"
)

// Op 更新类型
type Op string

const (
	OpUpsert   Op = "upsert"
	OpDelete   Op = "delete"
	OpSnapshot Op = "snapshot"
)

// ContactUpdate 一条权威更新
type ContactUpdate struct {
	Op        Op               `json:"op"`
	Contact   *models.Contact  `json:"contact,omitempty"`
	ContactID string           `json:"contact_id,omitempty"`
	Contacts  []models.Contact `json:"contacts,omitempty"`
}

// DeliverFunc Source 收到更新后回调
type DeliverFunc func(ctx context.Context, u ContactUpdate) error

// Source 更新来源；Run 阻塞到 ctx 结束
type Source interface {
	Name() string
	Run(ctx context.Context, deliver DeliverFunc) error
}

// UpdateConsumer 更新消费者
type UpdateConsumer struct {
	store  *store.ContactStore
	source Source
	logger *zap.Logger
}

// NewUpdateConsumer 创建
func NewUpdateConsumer(s *store.ContactStore, source Source, logger *zap.Logger) *UpdateConsumer {
	return &UpdateConsumer{store: s, source: source, logger: logger}
}

// Start 启动消费（阻塞）
func (c *UpdateConsumer) Start(ctx context.Context) error {
	c.logger.Info("Update consumer started", zap.String("source", c.source.Name()))
	err := c.source.Run(ctx, c.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("update source %s stopped: %w", c.source.Name(), err)
	}
	return nil
}

// Handle 应用一条更新
func (c *UpdateConsumer) Handle(_ context.Context, u ContactUpdate) error {
	switch u.Op {
	case OpUpsert:
		if u.Contact == nil {
			return fmt.Errorf("upsert without contact")
		}
		if _, err := c.store.Apply(store.ApplyRemote{Contact: *u.Contact}); err != nil {
			return fmt.Errorf("failed to apply remote contact %s: %w", u.Contact.ID, err)
		}
		c.logger.Debug("Remote contact applied", zap.String("contact_id", u.Contact.ID))

	case OpDelete:
		id := u.ContactID
		if id == "" && u.Contact != nil {
			id = u.Contact.ID
		}
		if id == "" {
			return fmt.Errorf("delete without contact id")
		}
		if _, err := c.store.Apply(store.RemoveContact{ID: id}); err != nil {
			// 本地已删除
			if errors.Is(err, models.ErrContactNotFound) {
				return nil
			}
			return fmt.Errorf("failed to remove contact %s: %w", id, err)
		}
		c.logger.Debug("Remote contact removed", zap.String("contact_id", id))

	case OpSnapshot:
		if err := c.store.Replace(u.Contacts); err != nil {
			return fmt.Errorf("failed to apply snapshot: %w", err)
		}
		c.logger.Info("Remote snapshot applied", zap.Int("contact_count", len(u.Contacts)))

	default:
		c.logger.Warn("Unknown update op", zap.String("op", string(u.Op)))
	}
	return nil
}
