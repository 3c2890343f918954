package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/crewflow/types"
)

// ErrRetryExhausted 用于 errors.Is 判断重试是否已终止
var ErrRetryExhausted = types.NewError(types.ErrRetryExhausted, "retry exhausted")

// ExhaustedError 重试终止错误，携带实际尝试次数与最后一次错误
type ExhaustedError struct {
	Attempts int
	Last     error
	// Permanent 为 true 表示因不可重试错误提前终止
	Permanent bool
}

func (e *ExhaustedError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("non-retryable failure on attempt %d: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("retry exhausted after %d attempt(s): %v", e.Attempts, e.Last)
}

// Unwrap 同时暴露 ErrRetryExhausted 与最后一次错误
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Last}
}

// AttemptsOf 返回错误链中记录的尝试次数，没有时返回 0
func AttemptsOf(err error) int {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	return 0
}

// permanentError 标记不可重试的错误
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 将错误标记为不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 检查错误是否被 Permanent 标记
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// DefaultClassifier 默认错误分类：
// 输入类错误（参数、请求格式、认证、前置条件）与 Permanent 标记的错误不重试，
// 超时、网络、服务端错误一律重试。
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var te *types.Error
	if errors.As(err, &te) {
		if te.Retryable {
			return true
		}
		switch te.Code {
		case types.ErrInvalidArgument, types.ErrInvalidRequest, types.ErrAuthentication, types.ErrFailedPrecondition:
			return false
		}
	}
	return true
}
