// Package remote 远端权威存储的操作契约与 HTTP 实现
package remote

import (
	"context"

	"lifesignal-sync/internal/models"
)

// UserRef 二维码解析结果
type UserRef struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Service 远端操作；每个调用要么成功，要么返回可用 errors.Is 判断的错误
type Service interface {
	AddContactRelation(ctx context.Context, userID, contactID string, isResponder, isDependent bool) (string, error)
	UpdateContactRoles(ctx context.Context, userID, contactID string, isResponder, isDependent bool) (string, error)
	DeleteContactRelation(ctx context.Context, userID, contactID string) error
	PingDependent(ctx context.Context, userID, dependentID string) (string, error)
	RespondToPing(ctx context.Context, userID, responderID string) (string, error)
	RespondToAllPings(ctx context.Context, userID string) (int, error)
	ClearPing(ctx context.Context, userID, dependentID string) (string, error)
	LookupUserByQRCode(ctx context.Context, qrCodeID string) (UserRef, error)
	// ListContacts 当前用户的全量联系人快照（启动时加载）
	ListContacts(ctx context.Context, userID string) ([]models.Contact, error)
	Health(ctx context.Context) error
}
