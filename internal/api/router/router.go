package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"almond/backend/config"
	"almond/backend/internal/api/handler"
	"almond/backend/internal/api/middleware"
	"almond/backend/pkg/jwt"
	"almond/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时黑名单与限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	var (
		checker middleware.TokenChecker
		limiter middleware.Limiter
	)
	if rdb != nil {
		checker, limiter = rdb, rdb
	}

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		v1.POST("/auth/login", middleware.RateLimit(limiter, 10, time.Minute), h.Auth.Login)

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, checker, logger))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.Me)

			// 建议服务调用按用户限流
			adviceLimit := middleware.RateLimit(limiter, 20, time.Minute)

			tasks := authorized.Group("/tasks/:id")
			{
				// 分工与周期
				tasks.GET("/assignments", h.Task.GetFinalizedAssignments)
				tasks.POST("/assignments", h.Task.SubmitAssignments)
				tasks.PUT("/assignments", h.Task.UpdateAssignments)
				tasks.GET("/assignments/status", h.Task.GetAssignmentStatus)
				tasks.POST("/assignments/confirm", h.Task.Confirm)
				tasks.POST("/advice/initial", adviceLimit, h.Task.InitialAdvice)
				tasks.POST("/advice/confirmation", adviceLimit, h.Task.ConfirmationAdvice)

				// 周目标
				tasks.GET("/goals/me", h.Goal.ListMyGoals)
				tasks.GET("/goals/check", h.Goal.CheckWeeklyGoals)
				tasks.POST("/goals/generate", adviceLimit, h.Goal.GenerateGoal)
				tasks.POST("/goals/generate-all", adviceLimit, h.Goal.GenerateWeekForGroup)

				// 周会
				tasks.GET("/meetings", h.Meeting.ListMeetings)
				tasks.GET("/meetings/:no/can-upload", h.Meeting.CanUpload)
				tasks.GET("/meetings/:no/requirements", h.Meeting.Requirements)
				tasks.POST("/meetings/:no/document", h.Meeting.Upload)

				// 对话
				tasks.GET("/conversation", h.Conversation.History)
				tasks.POST("/conversation", adviceLimit, h.Conversation.Send)
				tasks.GET("/conversation/summary", h.Conversation.Summary)

				// 导出
				tasks.GET("/report.xlsx", h.Report.ExportProgress)
				tasks.GET("/meetings.ics", h.Report.ExportMeetingsICS)
			}

			authorized.PUT("/goals/:id", h.Goal.UpdateGoal)

			meetings := authorized.Group("/meetings/:id")
			{
				meetings.GET("", h.Meeting.GetMeeting)
				meetings.POST("/complete", h.Meeting.Complete)
			}

			// 教师 / 管理员总览（不要求小组成员身份）
			admin := authorized.Group("/admin", middleware.RoleAuth("teacher", "admin"))
			{
				admin.GET("/tasks/:id/snapshot", h.Report.Snapshot)
			}
		}
	}

	return r
}
