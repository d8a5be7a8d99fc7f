package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/config"
	"github.com/aya-cs/bdaprojet2/internal/api/handler"
	"github.com/aya-cs/bdaprojet2/internal/api/router"
	"github.com/aya-cs/bdaprojet2/internal/audit"
	"github.com/aya-cs/bdaprojet2/internal/repository"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
	"github.com/aya-cs/bdaprojet2/internal/service"
	"github.com/aya-cs/bdaprojet2/pkg/database"
	"github.com/aya-cs/bdaprojet2/pkg/jwt"
	applogger "github.com/aya-cs/bdaprojet2/pkg/logger"
	"github.com/aya-cs/bdaprojet2/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("EXAM_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Scheduler.Timezone),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，限流与审计广播将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化 JWT 校验器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 排考引擎: Store → Coordinator
	repo := repository.NewRepository(db)
	loc, _ := cfg.Scheduler.Location() // Load 时已校验

	store := scheduler.NewStore(service.NewCatalogSource(repo, logger), repo.ExamAssignment, scheduler.StoreOptions{
		Location:   loc,
		CatalogTTL: cfg.Scheduler.CatalogTTL,
	}, logger.Named("store"))

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Load(loadCtx, repo.ExamAssignment)
	loadCancel()
	if err != nil {
		logger.Fatal("加载考试安排失败", zap.Error(err))
	}

	sinks := audit.Multi{audit.NewLogSink(logger)}
	if rdb != nil {
		sinks = append(sinks, audit.NewRedisSink(rdb, cfg.Audit.RedisChannel, logger))
	}

	coord := scheduler.NewCoordinator(store, sinks, scheduler.CoordinatorOptions{
		Rules: scheduler.Rules{
			MaxDailyPerProfessor: cfg.Scheduler.MaxDailyPerProfessor,
			CapacityMargin:       cfg.Scheduler.CapacityMargin,
		},
		LockTimeout: cfg.Scheduler.CommitTimeout,
		MaxRetries:  cfg.Scheduler.CommitMaxRetries,
	}, logger.Named("coordinator"))

	// 6.1 已结束考试自动完结
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go runSweeper(sweepCtx, coord, cfg.Scheduler.SweepInterval, logger, sweepDone)

	// 7. 依赖注入: Service → Handler → Router
	svc := service.NewService(cfg, repo, coord, logger)
	h := handler.NewHandler(svc)
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 贪心排考可能较慢
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	sweepCancel()
	<-sweepDone

	// 关闭数据库连接
	if sqlDB != nil {
		sqlDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// runSweeper 周期性将已过结束时间的考试标记为 completed；interval ≤ 0 时不启动
func runSweeper(ctx context.Context, coord *scheduler.Coordinator, interval time.Duration, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := coord.CompleteElapsed(ctx); err != nil {
				logger.Warn("自动完结扫描中断", zap.Error(err))
			}
		}
	}
}
