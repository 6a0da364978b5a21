package errors

import (
	"errors"
	"fmt"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// Kind 核心业务错误分类
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindForbidden
	KindInvalidState
	KindInvalidArgument
	KindUpstreamUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindInvalidState:
		return "InvalidState"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindUpstreamUnavailable:
		return "UpstreamUnavailable"
	default:
		return "Unknown"
	}
}

// 分类哨兵：errors.Is(err, ErrNotFound) 可匹配任意 NotFound 类错误
var (
	ErrNotFound            = &CoreError{Kind: KindNotFound}
	ErrForbidden           = &CoreError{Kind: KindForbidden}
	ErrInvalidState        = &CoreError{Kind: KindInvalidState}
	ErrInvalidArgument     = &CoreError{Kind: KindInvalidArgument}
	ErrUpstreamUnavailable = &CoreError{Kind: KindUpstreamUnavailable}
)

// CoreError 可由调用方恢复的业务错误，携带面向用户的原因描述
type CoreError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *CoreError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *CoreError) Unwrap() error { return e.Err }

// Is 同一实例，或 target 为不带原因的分类哨兵时按 Kind 匹配
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, reason string) *CoreError {
	return &CoreError{Kind: kind, Reason: reason}
}

func NotFound(reason string) *CoreError        { return New(KindNotFound, reason) }
func Forbidden(reason string) *CoreError       { return New(KindForbidden, reason) }
func InvalidState(reason string) *CoreError    { return New(KindInvalidState, reason) }
func InvalidArgument(reason string) *CoreError { return New(KindInvalidArgument, reason) }

// Upstream 包装外部协作方（建议服务等）失败
func Upstream(reason string, err error) *CoreError {
	return &CoreError{Kind: KindUpstreamUnavailable, Reason: reason, Err: err}
}

// Wrap 在保留分类的前提下附加具体原因，errors.Is 仍能匹配原哨兵
func Wrap(base *CoreError, reason string) error {
	return fmt.Errorf("%w: %s", base, reason)
}

// KindOf 返回错误链上第一个 CoreError 的分类，非业务错误返回 0
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
