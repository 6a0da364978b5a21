package advice

// MemberContext 成员上下文
type MemberContext struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

// MessageContext 历史对话条目
type MessageContext struct {
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id,omitempty"`
	Content    string `json:"content"`
}

// TaskContext 任务上下文：调用方负责组装，核心逻辑只透传
type TaskContext struct {
	TaskID       string           `json:"task_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	DocumentText string           `json:"document_text,omitempty"`
	Members      []MemberContext  `json:"members,omitempty"`
	History      []MessageContext `json:"history,omitempty"`
}

// ── 请求 / 响应 ──

type initialAdviceRequest struct {
	Context TaskContext `json:"context"`
}

type confirmationAdviceRequest struct {
	Context     TaskContext     `json:"context"`
	Assignments []MemberContext `json:"assignments"`
}

type analyzeProgressRequest struct {
	WeekNo       int         `json:"week_no"`
	DocumentText string      `json:"document_text"`
	Context      TaskContext `json:"context"`
}

type generateGoalRequest struct {
	StudentID string      `json:"student_id"`
	WeekNo    int         `json:"week_no"`
	Context   TaskContext `json:"context"`
}

type chatRequest struct {
	Message string      `json:"message"`
	Context TaskContext `json:"context"`
}

type textResponse struct {
	Advice string `json:"advice"`
}

// GoalResponse 周目标生成结果
type GoalResponse struct {
	Goal string `json:"goal"`
}
