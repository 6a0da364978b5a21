package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "almond/backend/pkg/errors"
	"almond/backend/pkg/response"
)

// 业务错误码前缀（错误码 = 前缀 × 100 + 分类）
const (
	codeTask         = 120
	codeGoal         = 130
	codeMeeting      = 140
	codeConversation = 150
	codeReport       = 160
)

// writeCoreError 按业务错误分类写入响应
//
//	NotFound → 404 / Forbidden → 403 / InvalidState → 409
//	InvalidArgument → 400 / UpstreamUnavailable → 502
//
// 上游错误与非业务错误不向客户端暴露细节
func writeCoreError(c *gin.Context, err error, prefix int) {
	var ce *pkgerrors.CoreError
	if !errors.As(err, &ce) {
		response.InternalError(c)
		return
	}

	code := prefix*100 + int(ce.Kind)
	message := ce.Reason
	if message == "" {
		message = ce.Kind.String()
	}
	details := ""
	if full := err.Error(); full != message && ce.Kind != pkgerrors.KindUpstreamUnavailable {
		details = full
	}

	status := http.StatusInternalServerError
	switch ce.Kind {
	case pkgerrors.KindNotFound:
		status = http.StatusNotFound
	case pkgerrors.KindForbidden:
		status = http.StatusForbidden
	case pkgerrors.KindInvalidState:
		status = http.StatusConflict
	case pkgerrors.KindInvalidArgument:
		status = http.StatusBadRequest
	case pkgerrors.KindUpstreamUnavailable:
		status = http.StatusBadGateway
	}

	if details != "" {
		response.ErrorWithDetails(c, status, code, message, details)
		return
	}
	response.Error(c, status, code, message)
}
