package router

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/config"
	"github.com/aya-cs/bdaprojet2/internal/api/handler"
	"github.com/aya-cs/bdaprojet2/internal/api/middleware"
	"github.com/aya-cs/bdaprojet2/pkg/jwt"
	"github.com/aya-cs/bdaprojet2/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders(strings.HasPrefix(cfg.Server.BaseURL, "https://")))
	r.Use(middleware.CORS(cfg.Server.CORS))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	heavy := middleware.RateLimit(rdb, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window)
	planners := middleware.RoleAuth(jwt.RoleAdmin, jwt.RolePlanner)

	// ── API v1（全部需要认证）──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 排考模块
		exams := v1.Group("/exams")
		{
			exams.GET("", h.Exam.List)
			exams.GET("/conflicts", h.Exam.Conflicts)
			exams.POST("/candidates", heavy, h.Exam.Candidates)
			exams.POST("/validate", h.Exam.Validate)
			exams.POST("", planners, h.Exam.Commit)
			exams.POST("/plan", planners, heavy, h.Exam.Plan)
			exams.PUT("/:id/status", planners, h.Exam.UpdateStatus)

			// 导出
			exams.GET("/export/xlsx", h.Export.ExportXLSX)
			exams.GET("/export/ics", h.Export.ExportICS)
			exams.GET("/:id/ics", h.Export.ExportExamICS)
		}

		// 课程模块（仅维护先修关系）
		courses := v1.Group("/courses")
		{
			courses.PUT("/:id/prerequisite", middleware.RoleAuth(jwt.RoleAdmin), h.Course.SetPrerequisite)
		}

		// 教师模块（不可监考时段；本人或排考员可维护）
		professors := v1.Group("/professors")
		{
			professors.GET("/:id/unavailability", h.Professor.ListUnavailability)
			professors.POST("/:id/unavailability", h.Professor.AddUnavailability)
			professors.DELETE("/:id/unavailability/:uid", h.Professor.DeleteUnavailability)
		}
	}

	return r
}
