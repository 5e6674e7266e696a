// Package errs 定义控制器内部统一使用的错误类型
// 调用方通过 errors.Is 判断错误类别，而不是比较错误字符串
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrPartNotFound 料仓和传送带上都找不到所需零件，属于可恢复的正常结果
	ErrPartNotFound = errors.New("part not found")
	// ErrServiceUnavailable 外部服务尚未就绪，调用方应按固定间隔重试
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrServiceCallFailed 外部服务返回了失败结果
	ErrServiceCallFailed = errors.New("service call failed")
	// ErrInvalidOrderPayload 订单类型与载荷不匹配，订单会被拒绝
	ErrInvalidOrderPayload = errors.New("invalid order payload")
	ErrDuplicateOrder      = errors.New("duplicate order")
	ErrCarrierBusy         = errors.New("carrier busy")
	ErrAlreadyPopulated    = errors.New("inventory already populated")
	ErrCompetitionEnded    = errors.New("competition already ended")
)

// ServiceError 记录是哪个外部服务、以什么信息失败
type ServiceError struct {
	Service string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Service, e.Cause)
	}
	return fmt.Sprintf("%s: %v: %s", e.Service, e.Cause, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Unavailable 构造一个服务不可用错误
func Unavailable(service string, cause error) *ServiceError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ServiceError{Service: service, Message: msg, Cause: ErrServiceUnavailable}
}

// CallFailed 构造一个服务调用失败错误，message 为远端返回的说明
func CallFailed(service, message string) *ServiceError {
	return &ServiceError{Service: service, Message: message, Cause: ErrServiceCallFailed}
}

// InvalidPayload 包装订单载荷校验失败的原因
func InvalidPayload(orderID, reason string) error {
	return fmt.Errorf("%w: order %s: %s", ErrInvalidOrderPayload, orderID, reason)
}
