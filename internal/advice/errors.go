package advice

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUpstreamUnavailable 建议服务不可用（超时、网络错误、非 2xx、空响应）
var ErrUpstreamUnavailable = errors.New("建议服务暂不可用")

// ErrDisabled 未启用建议服务
var ErrDisabled = errors.New("建议服务未启用")

// DegradedMessage 建议服务失败时展示给用户的降级文案
const DegradedMessage = "暂时无法获取智能建议，请稍后再试。"

// HTTPError 建议服务返回的非 2xx 响应
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("advice http error: status=%d message=%s", e.StatusCode, msg)
}

// Unwrap 所有 HTTP 失败都归类为上游不可用
func (e *HTTPError) Unwrap() error { return ErrUpstreamUnavailable }

// retryable 仅 5xx 与 429 重试
func (e *HTTPError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func parseHTTPError(status int, raw []byte) *HTTPError {
	body := strings.TrimSpace(string(raw))

	// 兼容 FastAPI 的 {"detail": "..."} 与 {"error": {"message": "..."}}
	var env struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &env); err == nil {
		msg = env.Detail
		if msg == "" {
			msg = env.Error.Message
		}
	}
	return &HTTPError{StatusCode: status, Message: strings.TrimSpace(msg), Body: body}
}
