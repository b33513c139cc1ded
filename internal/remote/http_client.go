package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lifesignal-sync/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Options HTTP 客户端参数
type Options struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
}

// errorResponse 远端错误响应体
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rolesRequest 新增/修改关系
type rolesRequest struct {
	ContactID   string `json:"contact_id,omitempty"`
	IsResponder bool   `json:"is_responder"`
	IsDependent bool   `json:"is_dependent"`
}

type contactIDResponse struct {
	ContactID string `json:"contact_id"`
}

type dependentIDResponse struct {
	DependentID string `json:"dependent_id"`
}

type responderIDResponse struct {
	ResponderID string `json:"responder_id"`
}

type respondedCountResponse struct {
	RespondedCount int `json:"responded_count"`
}

type contactsResponse struct {
	Contacts []models.Contact `json:"contacts"`
}

// HTTPClient 基于 JSON/HTTP 的 Service 实现
type HTTPClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPClient 创建远端客户端
func NewHTTPClient(opts Options, logger *zap.Logger) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryWaitTime <= 0 {
		opts.RetryWaitTime = 500 * time.Millisecond
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(4*opts.RetryWaitTime).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &HTTPClient{
		httpClient: client,
		logger:     logger,
	}
}

// do 执行请求并把失败映射为 *Error / ErrUnavailable
func (c *HTTPClient) do(ctx context.Context, op, method, path string, pathParams map[string]string, body, result any) error {
	req := c.httpClient.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetError(&errorResponse{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		c.logger.Warn("Remote call failed",
			zap.String("op", op),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	if resp.IsError() {
		var code, msg string
		if e, ok := resp.Error().(*errorResponse); ok && e != nil {
			code, msg = e.Code, e.Message
		}
		rerr := &Error{
			Op:      op,
			Status:  resp.StatusCode(),
			Kind:    kindFromStatus(resp.StatusCode(), code),
			Message: msg,
		}
		c.logger.Warn("Remote call rejected",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("code", code),
			zap.String("msg", msg),
		)
		return rerr
	}
	return nil
}

// AddContactRelation 新增联系人关系
func (c *HTTPClient) AddContactRelation(ctx context.Context, userID, contactID string, isResponder, isDependent bool) (string, error) {
	var out contactIDResponse
	err := c.do(ctx, "addContactRelation", http.MethodPost, "/v1/users/{userId}/contacts",
		map[string]string{"userId": userID},
		rolesRequest{ContactID: contactID, IsResponder: isResponder, IsDependent: isDependent},
		&out,
	)
	if err != nil {
		return "", err
	}
	return out.ContactID, nil
}

// UpdateContactRoles 修改角色
func (c *HTTPClient) UpdateContactRoles(ctx context.Context, userID, contactID string, isResponder, isDependent bool) (string, error) {
	var out contactIDResponse
	err := c.do(ctx, "updateContactRoles", http.MethodPut, "/v1/users/{userId}/contacts/{contactId}/roles",
		map[string]string{"userId": userID, "contactId": contactID},
		rolesRequest{IsResponder: isResponder, IsDependent: isDependent},
		&out,
	)
	if err != nil {
		return "", err
	}
	return out.ContactID, nil
}

// DeleteContactRelation 删除关系
func (c *HTTPClient) DeleteContactRelation(ctx context.Context, userID, contactID string) error {
	return c.do(ctx, "deleteContactRelation", http.MethodDelete, "/v1/users/{userId}/contacts/{contactId}",
		map[string]string{"userId": userID, "contactId": contactID},
		nil, nil,
	)
}

// PingDependent ping 一个 dependent
func (c *HTTPClient) PingDependent(ctx context.Context, userID, dependentID string) (string, error) {
	var out dependentIDResponse
	err := c.do(ctx, "pingDependent", http.MethodPost, "/v1/users/{userId}/pings/{dependentId}",
		map[string]string{"userId": userID, "dependentId": dependentID},
		nil, &out,
	)
	if err != nil {
		return "", err
	}
	return out.DependentID, nil
}

// ClearPing 撤回发出的 ping
func (c *HTTPClient) ClearPing(ctx context.Context, userID, dependentID string) (string, error) {
	var out dependentIDResponse
	err := c.do(ctx, "clearPing", http.MethodDelete, "/v1/users/{userId}/pings/{dependentId}",
		map[string]string{"userId": userID, "dependentId": dependentID},
		nil, &out,
	)
	if err != nil {
		return "", err
	}
	return out.DependentID, nil
}

// RespondToPing 回应一个 ping
func (c *HTTPClient) RespondToPing(ctx context.Context, userID, responderID string) (string, error) {
	var out responderIDResponse
	err := c.do(ctx, "respondToPing", http.MethodPost, "/v1/users/{userId}/ping-responses/{responderId}",
		map[string]string{"userId": userID, "responderId": responderID},
		nil, &out,
	)
	if err != nil {
		return "", err
	}
	return out.ResponderID, nil
}

// RespondToAllPings 回应全部 ping
func (c *HTTPClient) RespondToAllPings(ctx context.Context, userID string) (int, error) {
	var out respondedCountResponse
	err := c.do(ctx, "respondToAllPings", http.MethodPost, "/v1/users/{userId}/ping-responses",
		map[string]string{"userId": userID},
		nil, &out,
	)
	if err != nil {
		return 0, err
	}
	return out.RespondedCount, nil
}

// LookupUserByQRCode 解析二维码
func (c *HTTPClient) LookupUserByQRCode(ctx context.Context, qrCodeID string) (UserRef, error) {
	var out UserRef
	err := c.do(ctx, "lookupUserByQRCode", http.MethodGet, "/v1/qr-codes/{qrCodeId}",
		map[string]string{"qrCodeId": qrCodeID},
		nil, &out,
	)
	if err != nil {
		return UserRef{}, err
	}
	return out, nil
}

// ListContacts 联系人快照
func (c *HTTPClient) ListContacts(ctx context.Context, userID string) ([]models.Contact, error) {
	var out contactsResponse
	err := c.do(ctx, "listContacts", http.MethodGet, "/v1/users/{userId}/contacts",
		map[string]string{"userId": userID},
		nil, &out,
	)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Loaded contact snapshot", zap.Int("contact_count", len(out.Contacts)))
	return out.Contacts, nil
}

// Health 健康检查，连接探测使用
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/healthz", nil, nil, nil)
}

var _ Service = (*HTTPClient)(nil)
