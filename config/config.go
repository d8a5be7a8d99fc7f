package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int             `mapstructure:"port"`
	BaseURL      string          `mapstructure:"base_url"`
	CORS         CORSConfig      `mapstructure:"cors"`
	MaxBodyBytes int64           `mapstructure:"max_body_bytes"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 重计算接口（候选生成、贪心排考）限流配置
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins  []string      `mapstructure:"allow_origins"`
	AllowMethods  []string      `mapstructure:"allow_methods"`
	AllowHeaders  []string      `mapstructure:"allow_headers"`
	ExposeHeaders []string      `mapstructure:"expose_headers"` // 导出接口的文件名、请求追踪 ID
	MaxAge        time.Duration `mapstructure:"max_age"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（限流 + 审计通知通道）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 操作员 Token 校验配置
// Token 由外部账号系统签发，本服务只做校验
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig 排考引擎配置
type SchedulerConfig struct {
	Timezone             string        `mapstructure:"timezone"`                // 判定"同一天"所用时区
	SlotMinutes          int           `mapstructure:"slot_minutes"`            // 候选时间格宽度
	CandidateLimit       int           `mapstructure:"candidate_limit"`         // 候选结果上限
	DayStart             string        `mapstructure:"day_start"`               // 每日最早开考 HH:MM，空=不限
	DayEnd               string        `mapstructure:"day_end"`                 // 每日最晚结束 HH:MM，空=不限
	MaxDailyPerProfessor int           `mapstructure:"max_daily_per_professor"` // 教师单日监考上限
	CapacityMargin       float64       `mapstructure:"capacity_margin"`         // 提交时容量余量
	ProximityWindow      time.Duration `mapstructure:"proximity_window"`        // 学生考试间隔告警阈值
	CommitTimeout        time.Duration `mapstructure:"commit_timeout"`          // 获取资源锁的最长等待
	CommitMaxRetries     int           `mapstructure:"commit_max_retries"`      // 乐观重试次数上限
	CatalogTTL           time.Duration `mapstructure:"catalog_ttl"`             // 维度数据缓存时长
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`          // 已结束考试自动完结扫描周期，0=关闭
}

// AuditConfig 审计通知配置
type AuditConfig struct {
	RedisChannel string `mapstructure:"redis_channel"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.cors.allow_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors.allow_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("server.cors.expose_headers", []string{"Content-Disposition", "X-Request-ID"})
	v.SetDefault("server.cors.max_age", "24h")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.rate_limit.limit", 30)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "exam_platform")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Africa/Algiers")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "") // 无默认值的键不会被 AutomaticEnv 反序列化

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduler.timezone", "Africa/Algiers")
	v.SetDefault("scheduler.slot_minutes", 90)
	v.SetDefault("scheduler.candidate_limit", 100)
	v.SetDefault("scheduler.day_start", "08:00")
	v.SetDefault("scheduler.day_end", "18:00")
	v.SetDefault("scheduler.max_daily_per_professor", 3)
	v.SetDefault("scheduler.capacity_margin", 0.9)
	v.SetDefault("scheduler.proximity_window", "2h")
	v.SetDefault("scheduler.commit_timeout", "3s")
	v.SetDefault("scheduler.commit_max_retries", 5)
	v.SetDefault("scheduler.catalog_ttl", "30s")
	v.SetDefault("scheduler.sweep_interval", "10m")

	v.SetDefault("audit.redis_channel", "audit:exam_assignment")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("EXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	return c.Scheduler.Validate()
}

// Validate 校验排考引擎参数
func (s *SchedulerConfig) Validate() error {
	if s.SlotMinutes < 60 || s.SlotMinutes > 240 {
		return fmt.Errorf("配置校验失败: scheduler.slot_minutes 必须在 60-240 之间")
	}
	if s.CandidateLimit <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.candidate_limit 必须大于 0")
	}
	if s.MaxDailyPerProfessor <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.max_daily_per_professor 必须大于 0")
	}
	if s.CapacityMargin <= 0 || s.CapacityMargin > 1 {
		return fmt.Errorf("配置校验失败: scheduler.capacity_margin 必须在 (0, 1] 之间")
	}
	if s.CommitTimeout <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.commit_timeout 必须大于 0")
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("配置校验失败: scheduler.timezone 无效: %w", err)
	}
	if _, _, err := s.DailyBounds(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}

// Location 解析排考时区
func (s *SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// DailyBounds 将 day_start / day_end 解析为距当日零点的偏移量
// 两者均为空时返回 0, 0（不限制）
func (s *SchedulerConfig) DailyBounds() (time.Duration, time.Duration, error) {
	if s.DayStart == "" && s.DayEnd == "" {
		return 0, 0, nil
	}
	start, err := parseClock(s.DayStart, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler.day_start 无效: %w", err)
	}
	end, err := parseClock(s.DayEnd, 24*time.Hour)
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler.day_end 无效: %w", err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("scheduler.day_end 必须晚于 day_start")
	}
	return start, end, nil
}

func parseClock(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
