package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"almond/backend/internal/model"
	"almond/backend/internal/repository"
)

var seedFilePath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "从 YAML 文件导入用户、小组与任务",
	Long: `seed 读取 YAML 文件并在单个事务中写入用户、小组成员关系与任务。
已存在的邮箱会被跳过。`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFilePath, "file", "f", "", "种子文件路径")
	_ = seedCmd.MarkFlagRequired("file")
}

// ── 种子文件格式 ──

type seedFile struct {
	Users  []seedUser  `yaml:"users"`
	Groups []seedGroup `yaml:"groups"`
}

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type seedGroup struct {
	Name    string     `yaml:"name"`
	Teacher string     `yaml:"teacher"` // 教师邮箱，可选
	Members []string   `yaml:"members"` // 成员邮箱
	Tasks   []seedTask `yaml:"tasks"`
}

type seedTask struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	DueDate     string `yaml:"due_date"` // YYYY-MM-DD
}

// seedResult 导入统计
type seedResult struct {
	UsersCreated  int
	UsersSkipped  int
	GroupsCreated int
	TasksCreated  int
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(seedFilePath)
	if err != nil {
		return fmt.Errorf("打开种子文件失败: %w", err)
	}
	defer f.Close()

	sf, err := parseSeedFile(f)
	if err != nil {
		return err
	}

	_, db, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(db)

	res, err := applySeed(cmd.Context(), db, sf, bcrypt.DefaultCost, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf(
		"导入完成：用户 %d（跳过 %d），小组 %d，任务 %d",
		res.UsersCreated, res.UsersSkipped, res.GroupsCreated, res.TasksCreated,
	)))
	return nil
}

// parseSeedFile 解析并校验种子文件
func parseSeedFile(r io.Reader) (*seedFile, error) {
	var sf seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("解析种子文件失败: %w", err)
	}

	emails := make(map[string]bool, len(sf.Users))
	for i := range sf.Users {
		u := &sf.Users[i]
		u.Email = normalizeEmail(u.Email)
		u.Name = strings.TrimSpace(u.Name)
		if u.Name == "" || u.Email == "" {
			return nil, fmt.Errorf("第 %d 个用户缺少姓名或邮箱", i+1)
		}
		if emails[u.Email] {
			return nil, fmt.Errorf("邮箱重复: %s", u.Email)
		}
		emails[u.Email] = true
		if u.Role == "" {
			u.Role = string(model.RoleStudent)
		}
		switch model.UserRole(u.Role) {
		case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
		default:
			return nil, fmt.Errorf("用户 %s 的角色无效: %s", u.Email, u.Role)
		}
		if len(u.Password) < 8 {
			return nil, fmt.Errorf("用户 %s 的密码长度不能少于 8 位", u.Email)
		}
	}

	for i := range sf.Groups {
		g := &sf.Groups[i]
		if strings.TrimSpace(g.Name) == "" {
			return nil, fmt.Errorf("第 %d 个小组缺少名称", i+1)
		}
		for j, m := range g.Members {
			g.Members[j] = normalizeEmail(m)
		}
		g.Teacher = normalizeEmail(g.Teacher)
		for _, t := range g.Tasks {
			if strings.TrimSpace(t.Title) == "" {
				return nil, fmt.Errorf("小组 %s 存在缺少标题的任务", g.Name)
			}
			if t.DueDate != "" {
				if _, err := time.Parse(time.DateOnly, t.DueDate); err != nil {
					return nil, fmt.Errorf("任务 %s 的截止日期格式错误: %s", t.Title, t.DueDate)
				}
			}
		}
	}
	return &sf, nil
}

// applySeed 在单个事务内写入种子数据
// 成员与教师邮箱既可引用本文件中的用户，也可引用库中已有用户
func applySeed(ctx context.Context, db *gorm.DB, sf *seedFile, cost int, logger *zap.Logger) (*seedResult, error) {
	res := &seedResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewRepository(tx)

		// ── 用户 ──
		for _, u := range sf.Users {
			if _, err := repo.User.GetByEmail(ctx, u.Email); err == nil {
				res.UsersSkipped++
				continue
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
			if err != nil {
				return fmt.Errorf("生成密码哈希失败: %w", err)
			}
			if err := repo.User.Create(ctx, &model.User{
				Name:         u.Name,
				Email:        u.Email,
				PasswordHash: string(hash),
				Role:         model.UserRole(u.Role),
			}); err != nil {
				return fmt.Errorf("创建用户 %s 失败: %w", u.Email, err)
			}
			res.UsersCreated++
		}

		// ── 小组与任务 ──
		for _, g := range sf.Groups {
			group := &model.Group{Name: strings.TrimSpace(g.Name)}
			if g.Teacher != "" {
				teacher, err := lookupUser(ctx, repo, g.Teacher)
				if err != nil {
					return err
				}
				group.TeacherID = &teacher.UserID
			}
			if err := repo.Roster.CreateGroup(ctx, group); err != nil {
				return fmt.Errorf("创建小组 %s 失败: %w", g.Name, err)
			}
			res.GroupsCreated++

			for _, email := range g.Members {
				member, err := lookupUser(ctx, repo, email)
				if err != nil {
					return err
				}
				if err := repo.Roster.AddMember(ctx, group.GroupID, member.UserID); err != nil {
					return fmt.Errorf("添加成员 %s 失败: %w", email, err)
				}
			}

			for _, t := range g.Tasks {
				task := &model.Task{
					GroupID:     group.GroupID,
					Title:       strings.TrimSpace(t.Title),
					Description: t.Description,
					Status:      model.TaskStatusInitializing,
				}
				if t.DueDate != "" {
					due, _ := time.Parse(time.DateOnly, t.DueDate)
					task.DueDate = &due
				}
				if err := repo.Task.Create(ctx, task); err != nil {
					return fmt.Errorf("创建任务 %s 失败: %w", t.Title, err)
				}
				res.TasksCreated++
				logger.Info("已创建任务",
					zap.String("group", group.Name),
					zap.String("task_id", task.TaskID),
				)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func lookupUser(ctx context.Context, repo *repository.Repository, email string) (*model.User, error) {
	user, err := repo.User.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("用户不存在: %s", email)
		}
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
