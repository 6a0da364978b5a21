package dto

// ── 周目标 DTO ──

// UpdateGoalRequest 填写周目标
type UpdateGoalRequest struct {
	Goal string `json:"goal" binding:"required,max=4000"`
}

// GenerateGoalRequest 生成周目标
type GenerateGoalRequest struct {
	WeekNo int `json:"week_no" binding:"required,min=1"`
}

// GoalQuery 按周查询
type GoalQuery struct {
	WeekNo int `form:"week" binding:"required,min=1"`
}

// ── 响应 ──

// GoalResponse 周目标响应
type GoalResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	StudentID string `json:"student_id"`
	WeekNo    int    `json:"week_no"`
	Goal      string `json:"goal"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// Blocker 未就绪成员
// Status 为 NOT_SET 表示该成员本周没有目标记录
type Blocker struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
}

// ReadinessReport 小组某周目标就绪情况
type ReadinessReport struct {
	TaskID   string    `json:"task_id"`
	WeekNo   int       `json:"week_no"`
	Ready    bool      `json:"ready"`
	Blockers []Blocker `json:"blockers"`
}

// GenerationFailure 单个成员生成失败
type GenerationFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// GenerateWeekResponse 小组批量生成结果
type GenerateWeekResponse struct {
	WeekNo    int                 `json:"week_no"`
	Generated []GoalResponse      `json:"generated"`
	Failed    []GenerationFailure `json:"failed"`
}
