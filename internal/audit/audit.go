// Package audit 将排考引擎的变更通知投递到外部审计模块。
// 审计记录的格式与存储由下游负责，这里只负责投递。
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

// Publisher 消息发布（由 pkg/redis.Client 实现）
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// ── 日志投递 ──

// LogSink 以结构化日志记录变更，作为兜底审计通道
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志投递
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Notify 实现 scheduler.Notifier
func (s *LogSink) Notify(_ context.Context, ev scheduler.ChangeEvent) error {
	fields := []zap.Field{
		zap.String("entity", ev.Entity),
		zap.String("id", ev.ID),
		zap.String("action", ev.Action),
		zap.String("actor", ev.Actor),
		zap.Time("at", ev.At),
	}
	if ev.Before != nil {
		fields = append(fields, zap.String("before_status", ev.Before.Status))
	}
	if ev.After != nil {
		fields = append(fields,
			zap.String("after_status", ev.After.Status),
			zap.String("room_id", ev.After.RoomID),
			zap.String("professor_id", ev.After.ProfessorID),
			zap.Time("start_time", ev.After.StartTime),
		)
	}
	s.logger.Info("考试安排变更", fields...)
	return nil
}

// ── Redis 频道投递 ──

// RedisSink 将变更以 JSON 发布到 Redis 频道，供审计服务订阅
type RedisSink struct {
	pub     Publisher
	channel string
	logger  *zap.Logger
}

// NewRedisSink 创建 Redis 投递
func NewRedisSink(pub Publisher, channel string, logger *zap.Logger) *RedisSink {
	return &RedisSink{pub: pub, channel: channel, logger: logger}
}

// Notify 实现 scheduler.Notifier
func (s *RedisSink) Notify(ctx context.Context, ev scheduler.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化变更通知失败: %w", err)
	}
	n, err := s.pub.Publish(ctx, s.channel, payload)
	if err != nil {
		return err
	}
	if n == 0 {
		s.logger.Debug("变更通知无订阅者", zap.String("channel", s.channel), zap.String("id", ev.ID))
	}
	return nil
}

// ── 扇出 ──

// Multi 依次投递到全部下游，单个失败不影响其余，错误合并返回
type Multi []scheduler.Notifier

// Notify 实现 scheduler.Notifier
func (m Multi) Notify(ctx context.Context, ev scheduler.ChangeEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
