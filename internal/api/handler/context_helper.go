package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"almond/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get("role")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// tokenInfo 当前 Access Token 的 jti 与剩余有效期，缺失时返回零值
func tokenInfo(c *gin.Context) (string, time.Duration) {
	jti := c.GetString("token_jti")
	exp, ok := c.Get("token_exp")
	if !ok {
		return jti, 0
	}
	t, ok := exp.(time.Time)
	if !ok {
		return jti, 0
	}
	return jti, time.Until(t)
}

// mustParamID 路径参数非空校验
func mustParamID(c *gin.Context, name, label string) (string, bool) {
	id := c.Param(name)
	if id == "" {
		response.BadRequest(c, 10001, label+"不能为空")
		return "", false
	}
	return id, true
}

// mustPositiveInt 路径参数解析为正整数
func mustPositiveInt(c *gin.Context, name, label string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 1 {
		response.BadRequest(c, 10001, label+"必须为正整数")
		return 0, false
	}
	return n, true
}
