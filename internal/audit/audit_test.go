package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

type mockPublisher struct {
	channel string
	payload []byte
	err     error
}

func (m *mockPublisher) Publish(_ context.Context, channel string, payload []byte) (int64, error) {
	m.channel = channel
	m.payload = payload
	return 1, m.err
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, scheduler.ChangeEvent) error { return f.err }

func sampleEvent() scheduler.ChangeEvent {
	before := model.ExamAssignment{AssignmentID: "a-1", Status: model.ExamStatusPlanned}
	after := before
	after.Status = model.ExamStatusConfirmed
	return scheduler.ChangeEvent{
		Entity: "ExamAssignment",
		ID:     "a-1",
		Action: scheduler.ActionTransition,
		Before: &before,
		After:  &after,
		At:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestLogSink_Notify(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	if err := sink.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify 失败: %v", err)
	}

	entries := logs.FilterMessage("考试安排变更").All()
	if len(entries) != 1 {
		t.Fatalf("期望 1 条审计日志，实际 %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["id"] != "a-1" {
		t.Errorf("期望 id=a-1，实际 %v", ctx["id"])
	}
	if ctx["before_status"] != model.ExamStatusPlanned || ctx["after_status"] != model.ExamStatusConfirmed {
		t.Errorf("状态字段错误: %v → %v", ctx["before_status"], ctx["after_status"])
	}
}

func TestRedisSink_Notify(t *testing.T) {
	pub := &mockPublisher{}
	sink := NewRedisSink(pub, "exam:audit", zap.NewNop())

	if err := sink.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify 失败: %v", err)
	}
	if pub.channel != "exam:audit" {
		t.Errorf("期望频道 exam:audit，实际 %s", pub.channel)
	}

	var got scheduler.ChangeEvent
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload 不是合法 JSON: %v", err)
	}
	if got.Entity != "ExamAssignment" || got.ID != "a-1" {
		t.Errorf("payload 内容错误: %+v", got)
	}
	if got.Before == nil || got.After == nil {
		t.Error("payload 应包含 before/after")
	}
}

func TestRedisSink_PublishError(t *testing.T) {
	pub := &mockPublisher{err: errors.New("redis down")}
	sink := NewRedisSink(pub, "exam:audit", zap.NewNop())

	if err := sink.Notify(context.Background(), sampleEvent()); err == nil {
		t.Error("发布失败时应返回错误")
	}
}

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	errBoom := errors.New("boom")
	m := Multi{failingNotifier{err: errBoom}, nil, NewLogSink(zap.New(core))}

	err := m.Notify(context.Background(), sampleEvent())
	if !errors.Is(err, errBoom) {
		t.Errorf("期望合并错误包含 boom，实际 %v", err)
	}
	if logs.Len() != 1 {
		t.Errorf("失败的下游不应阻止后续投递，日志条数 %d", logs.Len())
	}
}
