package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// 错误分类（对外契约的一部分：report 与重试策略都依赖它）。
const (
	// KindRateLimited 表示被 API 限流（HTTP 429）。可重试。
	KindRateLimited = "rate_limited"
	// KindTransient 表示瞬时网络/超时类失败。可重试。
	KindTransient = "transient_network"
	// KindInvalidRequest 表示请求本身有问题（鉴权、参数、内容策略）。不可重试。
	KindInvalidRequest = "invalid_request"
	// KindServerError 表示 API 侧 5xx。不重试：持续的 5xx 重试只会烧预算。
	KindServerError = "server_error"
)

// APIError 是生成 API 的结构化失败。
type APIError struct {
	Provider   string
	Kind       string
	StatusCode int // 0 表示非 HTTP 层失败
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "生成失败"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider=%s kind=%s HTTP %d: %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider=%s kind=%s: %s", e.Provider, e.Kind, msg)
}

// Kind 从 error 中提取分类；若不是 *APIError 则返回空串。
func Kind(err error) string {
	var e *APIError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable 判断错误是否值得在重试预算内再试一次。
//
// 规则：
// - ctx 取消：不重试（用户/上层已放弃）
// - APIError：只有 rate_limited / transient_network 可重试
// - 其它错误（连接失败、超时等未分类的网络层错误）：视为瞬时，可重试
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind == KindRateLimited || ae.Kind == KindTransient
	}
	return true
}
