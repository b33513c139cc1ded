package models

import (
	"errors"
	"fmt"
)

// 本地校验错误（同步、在任何修改之前返回）
var (
	ErrWouldRemoveLastRole = errors.New("would remove last role")
	ErrNotEligible         = errors.New("contact is not eligible")
	ErrNoActivePing        = errors.New("no active ping")
	ErrContactNotFound     = errors.New("contact not found")
	ErrContactExists       = errors.New("contact already exists")
	ErrInvalidContact      = errors.New("invalid contact")
)

// ValidationKind 校验错误种类
type ValidationKind int

const (
	ValidationWouldRemoveLastRole ValidationKind = iota + 1
	ValidationNotEligible
	ValidationNoActivePing
	ValidationContactNotFound
	ValidationContactExists
	ValidationInvalidContact
)

func (k ValidationKind) sentinel() error {
	switch k {
	case ValidationWouldRemoveLastRole:
		return ErrWouldRemoveLastRole
	case ValidationNotEligible:
		return ErrNotEligible
	case ValidationNoActivePing:
		return ErrNoActivePing
	case ValidationContactNotFound:
		return ErrContactNotFound
	case ValidationContactExists:
		return ErrContactExists
	default:
		return ErrInvalidContact
	}
}

// ValidationError 被拒绝的本地修改；errors.Is 可与对应哨兵错误匹配
type ValidationError struct {
	Kind      ValidationKind
	ContactID string
	Detail    string
}

// NewValidationError 创建校验错误
func NewValidationError(kind ValidationKind, contactID string) *ValidationError {
	return &ValidationError{Kind: kind, ContactID: contactID}
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: contact_id=%s", e.Kind.sentinel(), e.ContactID)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Kind.sentinel()
}
