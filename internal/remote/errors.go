package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// 远端拒绝（不重试、不入队）
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrPermissionDenied = errors.New("permission denied")
)

// ErrUnavailable 远端不可达（网络错误、5xx、限流），可入队稍后重放
var ErrUnavailable = errors.New("remote unavailable")

// Error 远端调用失败
type Error struct {
	Op      string
	Status  int
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Kind, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// IsRejection 远端明确拒绝了请求（本地应回滚并告知用户）
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrPermissionDenied)
}

// IsTransient 连接类错误：保留乐观状态并入队
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// kindFromStatus HTTP 状态码映射；body 中的 code 优先
func kindFromStatus(status int, code string) error {
	switch strings.ToUpper(code) {
	case "UNAUTHENTICATED":
		return ErrUnauthenticated
	case "INVALID_ARGUMENT":
		return ErrInvalidArgument
	case "NOT_FOUND":
		return ErrNotFound
	case "ALREADY_EXISTS":
		return ErrAlreadyExists
	case "PERMISSION_DENIED":
		return ErrPermissionDenied
	case "UNAVAILABLE":
		return ErrUnavailable
	}

	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusForbidden:
		return ErrPermissionDenied
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrAlreadyExists
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return ErrUnavailable
	default:
		return ErrInvalidArgument
	}
}
