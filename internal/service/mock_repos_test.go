package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"almond/backend/internal/advice"
	"almond/backend/internal/model"
	"almond/backend/internal/repository"
	pkgerrors "almond/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		user.UserID = "user-" + user.Name
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) ListByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var result []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result = append(result, *u)
		}
	}
	return result, nil
}

// ── Mock Roster ──
// 同时实现 service.Roster 与 repository.RosterRepository

type mockRoster struct {
	users   *mockUserRepo
	tasks   *mockTaskRepo
	members map[string][]string // groupID → userIDs
	err     error
}

func newMockRoster(users *mockUserRepo, tasks *mockTaskRepo) *mockRoster {
	return &mockRoster{users: users, tasks: tasks, members: make(map[string][]string)}
}

func (m *mockRoster) CreateGroup(_ context.Context, group *model.Group) error { return nil }

func (m *mockRoster) GetGroup(_ context.Context, groupID string) (*model.Group, error) {
	if _, ok := m.members[groupID]; ok {
		return &model.Group{GroupID: groupID}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRoster) AddMember(_ context.Context, groupID, userID string) error {
	for _, id := range m.members[groupID] {
		if id == userID {
			return nil
		}
	}
	m.members[groupID] = append(m.members[groupID], userID)
	return nil
}

func (m *mockRoster) MembersOf(_ context.Context, groupID string) ([]model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []model.User
	for _, id := range m.members[groupID] {
		if u, ok := m.users.users[id]; ok {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockRoster) GroupIDOf(_ context.Context, taskID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if t, ok := m.tasks.tasks[taskID]; ok {
		return t.GroupID, nil
	}
	return "", gorm.ErrRecordNotFound
}

func (m *mockRoster) GroupIDsOf(_ context.Context, userID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for groupID, userIDs := range m.members {
		for _, id := range userIDs {
			if id == userID {
				ids = append(ids, groupID)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ── Mock TaskRepository ──

type mockTaskRepo struct {
	tasks map[string]*model.Task
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[string]*model.Task)}
}

func (m *mockTaskRepo) Create(_ context.Context, task *model.Task) error {
	if task.TaskID == "" {
		task.TaskID = "task-" + task.Title
	}
	m.tasks[task.TaskID] = task
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id string) (*model.Task, error) {
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTaskRepo) ConfirmCycle(_ context.Context, taskID string, cycle int) error {
	t, ok := m.tasks[taskID]
	if !ok || t.Cycle != nil {
		return pkgerrors.ErrOptimisticLock
	}
	c := cycle
	t.Cycle = &c
	t.Status = model.TaskStatusInProgress
	return nil
}

// ── Mock AssignmentRepository ──

type mockAssignmentRepo struct {
	users *mockUserRepo
	rows  map[string][]model.TaskAssignment // taskID → rows
	seq   int
}

func newMockAssignmentRepo(users *mockUserRepo) *mockAssignmentRepo {
	return &mockAssignmentRepo{users: users, rows: make(map[string][]model.TaskAssignment)}
}

func (m *mockAssignmentRepo) ListByTask(_ context.Context, taskID string) ([]model.TaskAssignment, error) {
	var result []model.TaskAssignment
	for _, r := range m.rows[taskID] {
		if u, ok := m.users.users[r.UserID]; ok {
			r.User = u
		}
		result = append(result, r)
	}
	return result, nil
}

func (m *mockAssignmentRepo) ReplaceForTask(_ context.Context, taskID string, rows []model.TaskAssignment) error {
	stored := make([]model.TaskAssignment, 0, len(rows))
	for _, r := range rows {
		m.seq++
		r.AssignmentID = fmt.Sprintf("assign-%d", m.seq)
		stored = append(stored, r)
	}
	m.rows[taskID] = stored
	return nil
}

func (m *mockAssignmentRepo) FinalizeAll(_ context.Context, taskID string) (int64, error) {
	var n int64
	for i := range m.rows[taskID] {
		if m.rows[taskID][i].Status != model.AssignmentStatusFinalized {
			m.rows[taskID][i].Status = model.AssignmentStatusFinalized
			n++
		}
	}
	return n, nil
}

// ── Mock WeeklyGoalRepository ──
// 小组批量生成会并发写入，需要加锁

type mockWeeklyGoalRepo struct {
	mu    sync.Mutex
	goals map[string]*model.MemberWeeklyGoal
	seq   int
}

func newMockWeeklyGoalRepo() *mockWeeklyGoalRepo {
	return &mockWeeklyGoalRepo{goals: make(map[string]*model.MemberWeeklyGoal)}
}

func (m *mockWeeklyGoalRepo) insert(goal *model.MemberWeeklyGoal) error {
	for _, g := range m.goals {
		if g.TaskID == goal.TaskID && g.StudentID == goal.StudentID && g.WeekNo == goal.WeekNo {
			return gorm.ErrDuplicatedKey
		}
	}
	m.seq++
	if goal.GoalID == "" {
		goal.GoalID = fmt.Sprintf("goal-%d", m.seq)
	}
	if goal.Status == "" {
		goal.Status = model.GoalStatusNotUploaded
	}
	cp := *goal
	m.goals[goal.GoalID] = &cp
	return nil
}

func (m *mockWeeklyGoalRepo) BatchCreate(_ context.Context, goals []model.MemberWeeklyGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range goals {
		if err := m.insert(&goals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockWeeklyGoalRepo) Create(_ context.Context, goal *model.MemberWeeklyGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(goal)
}

func (m *mockWeeklyGoalRepo) GetByID(_ context.Context, id string) (*model.MemberWeeklyGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.goals[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockWeeklyGoalRepo) GetByWeek(_ context.Context, taskID, studentID string, weekNo int) (*model.MemberWeeklyGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.goals {
		if g.TaskID == taskID && g.StudentID == studentID && g.WeekNo == weekNo {
			cp := *g
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockWeeklyGoalRepo) UpdateContent(_ context.Context, goalID, goal string, status model.GoalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok || !g.Status.CanAdvanceTo(status) {
		return pkgerrors.ErrOptimisticLock
	}
	g.Goal = goal
	g.Status = status
	return nil
}

func (m *mockWeeklyGoalRepo) list(match func(g *model.MemberWeeklyGoal) bool) []model.MemberWeeklyGoal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.MemberWeeklyGoal
	for _, g := range m.goals {
		if match(g) {
			result = append(result, *g)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].WeekNo != result[j].WeekNo {
			return result[i].WeekNo < result[j].WeekNo
		}
		return result[i].StudentID < result[j].StudentID
	})
	return result
}

func (m *mockWeeklyGoalRepo) ListByWeek(_ context.Context, taskID string, weekNo int) ([]model.MemberWeeklyGoal, error) {
	return m.list(func(g *model.MemberWeeklyGoal) bool { return g.TaskID == taskID && g.WeekNo == weekNo }), nil
}

func (m *mockWeeklyGoalRepo) ListByStudent(_ context.Context, taskID, studentID string) ([]model.MemberWeeklyGoal, error) {
	return m.list(func(g *model.MemberWeeklyGoal) bool { return g.TaskID == taskID && g.StudentID == studentID }), nil
}

func (m *mockWeeklyGoalRepo) ListByTask(_ context.Context, taskID string) ([]model.MemberWeeklyGoal, error) {
	return m.list(func(g *model.MemberWeeklyGoal) bool { return g.TaskID == taskID }), nil
}

func (m *mockWeeklyGoalRepo) FinalizeWeek(_ context.Context, taskID string, weekNo int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, g := range m.goals {
		if g.TaskID == taskID && g.WeekNo == weekNo && g.Status == model.GoalStatusProcessing {
			g.Status = model.GoalStatusFinished
			n++
		}
	}
	return n, nil
}

// 测试辅助：直接写入指定状态
func (m *mockWeeklyGoalRepo) put(taskID, studentID string, weekNo int, status model.GoalStatus) string {
	g := &model.MemberWeeklyGoal{TaskID: taskID, StudentID: studentID, WeekNo: weekNo, Status: status}
	_ = m.Create(context.Background(), g)
	return g.GoalID
}

func (m *mockWeeklyGoalRepo) statusOf(taskID, studentID string, weekNo int) model.GoalStatus {
	g, err := m.GetByWeek(context.Background(), taskID, studentID, weekNo)
	if err != nil {
		return model.GoalStatusNotSet
	}
	return g.Status
}

// ── Mock MeetingRepository ──

type mockMeetingRepo struct {
	meetings  map[string]*model.Meeting
	seq       int
	createErr error // 非空时 Create / BatchCreate 返回该错误
}

func newMockMeetingRepo() *mockMeetingRepo {
	return &mockMeetingRepo{meetings: make(map[string]*model.Meeting)}
}

func (m *mockMeetingRepo) insert(meeting *model.Meeting) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, e := range m.meetings {
		if e.TaskID == meeting.TaskID && e.MeetingNo == meeting.MeetingNo {
			return gorm.ErrDuplicatedKey
		}
	}
	m.seq++
	if meeting.MeetingID == "" {
		meeting.MeetingID = fmt.Sprintf("meeting-%d", m.seq)
	}
	cp := *meeting
	m.meetings[meeting.MeetingID] = &cp
	return nil
}

func (m *mockMeetingRepo) BatchCreate(_ context.Context, meetings []model.Meeting) error {
	for i := range meetings {
		if err := m.insert(&meetings[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockMeetingRepo) Create(_ context.Context, meeting *model.Meeting) error {
	return m.insert(meeting)
}

func (m *mockMeetingRepo) GetByID(_ context.Context, id string) (*model.Meeting, error) {
	if e, ok := m.meetings[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMeetingRepo) GetByTaskAndNo(_ context.Context, taskID string, meetingNo int) (*model.Meeting, error) {
	for _, e := range m.meetings {
		if e.TaskID == taskID && e.MeetingNo == meetingNo {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMeetingRepo) ListByTask(_ context.Context, taskID string) ([]model.Meeting, error) {
	var result []model.Meeting
	for _, e := range m.meetings {
		if e.TaskID == taskID {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MeetingNo < result[j].MeetingNo })
	return result, nil
}

func (m *mockMeetingRepo) CountUnfinishedBefore(_ context.Context, taskID string, meetingNo int) (int64, error) {
	var n int64
	for _, e := range m.meetings {
		if e.TaskID == taskID && e.MeetingNo < meetingNo && e.Status == model.MeetingStatusUnfinished {
			n++
		}
	}
	return n, nil
}

func (m *mockMeetingRepo) ReplaceDocument(_ context.Context, meetingID, documentURL string) error {
	e, ok := m.meetings[meetingID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.DocumentURL = documentURL
	e.Status = model.MeetingStatusUnfinished
	return nil
}

func (m *mockMeetingRepo) UpdateStatus(_ context.Context, meetingID string, status model.MeetingStatus) error {
	e, ok := m.meetings[meetingID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Status = status
	return nil
}

// 测试辅助
func (m *mockMeetingRepo) put(groupID, taskID string, meetingNo int, status model.MeetingStatus) string {
	e := &model.Meeting{GroupID: groupID, TaskID: taskID, MeetingNo: meetingNo, Status: status, MeetingDate: time.Now()}
	_ = m.insert(e)
	return e.MeetingID
}

// ── Mock ConversationRepository ──

type mockConversationRepo struct {
	entries []model.Conversation
	seq     int
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{}
}

func (m *mockConversationRepo) Create(_ context.Context, entry *model.Conversation) error {
	m.seq++
	if entry.ConversationID == "" {
		entry.ConversationID = fmt.Sprintf("conv-%03d", m.seq)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Date(2026, 3, 1, 9, 0, m.seq, 0, time.UTC)
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockConversationRepo) ListRecent(_ context.Context, taskID, groupID string, limit int) ([]model.Conversation, error) {
	var result []model.Conversation
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if e.TaskID == taskID && e.GroupID == groupID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockConversationRepo) ListByTaskAndGroup(_ context.Context, taskID, groupID string) ([]model.Conversation, error) {
	var result []model.Conversation
	for _, e := range m.entries {
		if e.TaskID == taskID && e.GroupID == groupID {
			result = append(result, e)
		}
	}
	return result, nil
}

// ── 测试夹具 ──

type testEnv struct {
	repo          *repository.Repository
	users         *mockUserRepo
	roster        *mockRoster
	tasks         *mockTaskRepo
	assignments   *mockAssignmentRepo
	goals         *mockWeeklyGoalRepo
	meetings      *mockMeetingRepo
	conversations *mockConversationRepo
}

// newTestEnv 小组 group-1 含 alice / bob 两名成员，任务 task-1 归属该小组
// mallory 属于另一小组 group-2
func newTestEnv() *testEnv {
	users := newMockUserRepo()
	tasks := newMockTaskRepo()
	env := &testEnv{
		users:         users,
		tasks:         tasks,
		roster:        newMockRoster(users, tasks),
		assignments:   newMockAssignmentRepo(users),
		goals:         newMockWeeklyGoalRepo(),
		meetings:      newMockMeetingRepo(),
		conversations: newMockConversationRepo(),
	}
	env.repo = &repository.Repository{
		User:         users,
		Roster:       env.roster,
		Task:         tasks,
		Assignment:   env.assignments,
		WeeklyGoal:   env.goals,
		Meeting:      env.meetings,
		Conversation: env.conversations,
	}

	ctx := context.Background()
	for _, u := range []*model.User{
		{UserID: "alice", Name: "Alice", Email: "alice@example.com", Role: model.RoleStudent},
		{UserID: "bob", Name: "Bob", Email: "bob@example.com", Role: model.RoleStudent},
		{UserID: "mallory", Name: "Mallory", Email: "mallory@example.com", Role: model.RoleStudent},
	} {
		_ = users.Create(ctx, u)
	}
	_ = env.roster.AddMember(ctx, "group-1", "alice")
	_ = env.roster.AddMember(ctx, "group-1", "bob")
	_ = env.roster.AddMember(ctx, "group-2", "mallory")
	_ = tasks.Create(ctx, &model.Task{TaskID: "task-1", GroupID: "group-1", Title: "课程项目", Status: model.TaskStatusInitializing})
	return env
}

// submitAssignments 直接写入 SUBMITTED 分工
func (e *testEnv) submitAssignments(taskID string, userIDs ...string) {
	rows := make([]model.TaskAssignment, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, model.TaskAssignment{
			TaskID:     taskID,
			UserID:     id,
			Role:       "开发",
			AssignedBy: userIDs[0],
			Status:     model.AssignmentStatusSubmitted,
		})
	}
	_ = e.assignments.ReplaceForTask(context.Background(), taskID, rows)
}

// ── Mock Advisor ──

type mockAdvisor struct {
	mu      sync.Mutex
	err     error
	failFor map[string]bool // studentID → 生成失败
	calls   int
	lastTC  advice.TaskContext
}

func (m *mockAdvisor) record(tc advice.TaskContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastTC = tc
	return m.err
}

func (m *mockAdvisor) InitialAdvice(_ context.Context, tc advice.TaskContext) (string, error) {
	if err := m.record(tc); err != nil {
		return "", err
	}
	return "建议先拆分模块", nil
}

func (m *mockAdvisor) ConfirmationAdvice(_ context.Context, tc advice.TaskContext, assignments []advice.MemberContext) (string, error) {
	if err := m.record(tc); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d 人分工合理", len(assignments)), nil
}

func (m *mockAdvisor) AnalyzeProgress(_ context.Context, weekNo int, _ string, tc advice.TaskContext) (string, error) {
	if err := m.record(tc); err != nil {
		return "", err
	}
	return fmt.Sprintf("第 %d 周进度正常", weekNo), nil
}

func (m *mockAdvisor) GenerateWeeklyGoal(_ context.Context, studentID string, weekNo int, tc advice.TaskContext) (*advice.GoalResponse, error) {
	if err := m.record(tc); err != nil {
		return nil, err
	}
	if m.failFor[studentID] {
		return nil, advice.ErrUpstreamUnavailable
	}
	return &advice.GoalResponse{Goal: fmt.Sprintf("%s 第 %d 周目标", studentID, weekNo)}, nil
}

func (m *mockAdvisor) Chat(_ context.Context, message string, tc advice.TaskContext) (string, error) {
	if err := m.record(tc); err != nil {
		return "", err
	}
	return "回复：" + message, nil
}

var (
	_ Roster                      = (*mockRoster)(nil)
	_ repository.RosterRepository = (*mockRoster)(nil)
	_ advice.Advisor              = (*mockAdvisor)(nil)
)
