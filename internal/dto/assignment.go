package dto

// ── 任务分工 DTO ──

// AssignmentItem 单个成员的分工
type AssignmentItem struct {
	UserID      string `json:"user_id"     binding:"required"`
	Role        string `json:"role"        binding:"required,max=100"`
	Description string `json:"description" binding:"max=2000"`
}

// SubmitAssignmentsRequest 提交 / 更新分工请求（整体替换）
type SubmitAssignmentsRequest struct {
	Assignments []AssignmentItem `json:"assignments" binding:"required,min=1,dive"`
}

// ConfirmCycleRequest 确认分工并设定周期
type ConfirmCycleRequest struct {
	Cycle int `json:"cycle" binding:"required"`
}

// ── 响应 ──

// AssignmentResponse 分工响应
type AssignmentResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name,omitempty"`
	Role        string `json:"role"`
	Description string `json:"description"`
	AssignedBy  string `json:"assigned_by"`
	Status      string `json:"status"`
}

// AssignmentStatusResponse 任务分工状态
type AssignmentStatusResponse struct {
	TaskID      string               `json:"task_id"`
	Status      string               `json:"status"` // DRAFT | SUBMITTED | FINALIZED
	Assignments []AssignmentResponse `json:"assignments"`
}

// ConfirmCycleResponse 周期确认结果
type ConfirmCycleResponse struct {
	TaskID          string `json:"task_id"`
	Cycle           int    `json:"cycle"`
	Status          string `json:"status"`
	GoalsCreated    int    `json:"goals_created"`
	MeetingsCreated int    `json:"meetings_created"`
}
