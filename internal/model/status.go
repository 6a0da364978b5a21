package model

// ── 状态枚举 ──
// 所有生命周期状态均为封闭枚举，门禁判断通过方法完成而不是字符串比较

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusInitializing TaskStatus = "INITIALIZING"
	TaskStatusInProgress   TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted    TaskStatus = "COMPLETED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusInitializing, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// AssignmentStatus 分工状态；空集合视为 DRAFT
type AssignmentStatus string

const (
	AssignmentStatusDraft     AssignmentStatus = "DRAFT"
	AssignmentStatusSubmitted AssignmentStatus = "SUBMITTED"
	AssignmentStatusFinalized AssignmentStatus = "FINALIZED"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentStatusDraft, AssignmentStatusSubmitted, AssignmentStatusFinalized:
		return true
	}
	return false
}

// GoalStatus 成员周目标状态：NOTUPLOADED → PROCESSING → FINISHED
type GoalStatus string

const (
	GoalStatusNotUploaded GoalStatus = "NOTUPLOADED"
	GoalStatusProcessing  GoalStatus = "PROCESSING"
	GoalStatusFinished    GoalStatus = "FINISHED"

	// GoalStatusNotSet 仅用于诊断信息：该成员本周尚无目标记录
	GoalStatusNotSet GoalStatus = "NOT_SET"
)

func (s GoalStatus) rank() int {
	switch s {
	case GoalStatusNotUploaded:
		return 1
	case GoalStatusProcessing:
		return 2
	case GoalStatusFinished:
		return 3
	}
	return 0
}

// Valid 可持久化的状态（NOT_SET 不可持久化）
func (s GoalStatus) Valid() bool { return s.rank() > 0 }

// CanAdvanceTo 只允许原地或向前迁移
func (s GoalStatus) CanAdvanceTo(next GoalStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

// AllowedFrom 可迁移到 s 的全部状态（含自身）
func (s GoalStatus) AllowedFrom() []GoalStatus {
	var out []GoalStatus
	for _, from := range []GoalStatus{GoalStatusNotUploaded, GoalStatusProcessing, GoalStatusFinished} {
		if from.CanAdvanceTo(s) {
			out = append(out, from)
		}
	}
	return out
}

// MeetingStatus 会议状态：UNFINISHED → COMPLETED
type MeetingStatus string

const (
	MeetingStatusUnfinished MeetingStatus = "UNFINISHED"
	MeetingStatusCompleted  MeetingStatus = "COMPLETED"
)

func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusUnfinished, MeetingStatusCompleted:
		return true
	}
	return false
}

// SenderType 对话发送方
type SenderType string

const (
	SenderUser  SenderType = "USER"
	SenderAgent SenderType = "AGENT"
)

func (s SenderType) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// UserRole 用户角色
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// [自证通过] internal/model/status.go
