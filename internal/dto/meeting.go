package dto

// ── 周会 DTO ──

// UploadMeetingRequest 上传周会文档
// DocumentText 为调用方已提取的文档文本，仅透传给建议服务
type UploadMeetingRequest struct {
	DocumentURL  string `json:"document_url"  binding:"required,max=500"`
	DocumentText string `json:"document_text" binding:"max=200000"`
}

// ── 响应 ──

// MeetingResponse 周会响应
type MeetingResponse struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	TaskID      string `json:"task_id"`
	MeetingNo   int    `json:"meeting_no"`
	MeetingDate string `json:"meeting_date"`
	Status      string `json:"status"`
	DocumentURL string `json:"document_url,omitempty"`
}

// GateResult 上传门禁判定
type GateResult struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	UnfinishedCount int64  `json:"unfinished_count"`
}

// 进度分析结果
const (
	AnalysisStatusCompleted = "COMPLETED"
	AnalysisStatusDegraded  = "DEGRADED" // 建议服务未启用或调用失败
	AnalysisStatusSkipped   = "SKIPPED"  // 未提供文档文本，未调用建议服务
)

// UploadMeetingResponse 上传结果；分析失败不影响上传
type UploadMeetingResponse struct {
	Meeting          MeetingResponse `json:"meeting"`
	Analysis         string          `json:"analysis,omitempty"`
	AnalysisStatus   string          `json:"analysis_status"`
	AnalysisDegraded bool            `json:"analysis_degraded"`
}

// CompleteMeetingResponse 完成周会结果
type CompleteMeetingResponse struct {
	Meeting       MeetingResponse `json:"meeting"`
	GoalsFinished int64           `json:"goals_finished"`
}

// PreviousMeetingStatus 上一次周会状态（仅诊断用）
type PreviousMeetingStatus struct {
	MeetingNo int    `json:"meeting_no"`
	Status    string `json:"status"` // UNFINISHED | COMPLETED | NOT_CREATED
}

// UploadRequirementsResponse 上传前置条件诊断
type UploadRequirementsResponse struct {
	MeetingNo       int                    `json:"meeting_no"`
	CanUpload       bool                   `json:"can_upload"`
	Gate            GateResult             `json:"gate"`
	Goals           ReadinessReport        `json:"goals"`
	GoalsProcessing ReadinessReport        `json:"goals_processing"`
	PreviousMeeting *PreviousMeetingStatus `json:"previous_meeting,omitempty"`
	Messages        []string               `json:"messages"`
}

// ── 周期总览 ──

// MemberWeekStatus 成员某周目标状态
type MemberWeekStatus struct {
	WeekNo int    `json:"week_no"`
	Goal   string `json:"goal"`
	Status string `json:"status"`
}

// MemberProgress 成员全周期目标
type MemberProgress struct {
	StudentID string             `json:"student_id"`
	Name      string             `json:"name"`
	Role      string             `json:"role,omitempty"`
	Weeks     []MemberWeekStatus `json:"weeks"`
}

// CycleSnapshot 任务周期总览（导出与运维命令共用）
type CycleSnapshot struct {
	TaskID    string            `json:"task_id"`
	Title     string            `json:"title"`
	GroupID   string            `json:"group_id"`
	Status    string            `json:"status"`
	Cycle     *int              `json:"cycle"`
	Meetings  []MeetingResponse `json:"meetings"`
	Members   []MemberProgress  `json:"members"`
	Completed int               `json:"completed_meetings"`
}
