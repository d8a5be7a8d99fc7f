package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/internal/model"
	pkgerrors "github.com/aya-cs/bdaprojet2/pkg/errors"
)

const catalogCacheKey = "catalog"

// AssignmentWriter 考试安排持久化（写穿）
// Update 以 Version 做乐观锁，冲突时返回 pkgerrors.ErrOptimisticLock
type AssignmentWriter interface {
	Create(ctx context.Context, a *model.ExamAssignment) error
	Update(ctx context.Context, a *model.ExamAssignment) error
}

// AssignmentLister 启动时加载已提交的考试安排
type AssignmentLister interface {
	ListAll(ctx context.Context) ([]model.ExamAssignment, error)
}

// StoreOptions Store 参数
type StoreOptions struct {
	Location   *time.Location // 判定日期所用时区
	CatalogTTL time.Duration  // 维度数据缓存时长，≤0 表示每次都重新加载
	Now        func() time.Time
}

// Store 考试安排的权威集合
//
// 状态以不可变 map 的形式挂在 atomic.Pointer 上，写入时复制后整体替换：
// 读者（生成器、冲突扫描）拿到的快照不会被后续写入修改，也不会阻塞写者。
// 只有 Coordinator 调用 Apply。
type Store struct {
	source CatalogSource
	writer AssignmentWriter
	opts   StoreOptions
	logger *zap.Logger

	catalogs *cache.Cache

	writeMu sync.Mutex
	state   atomic.Pointer[storeState]
	last    atomic.Pointer[Snapshot]
}

type storeEntry struct {
	assignment model.ExamAssignment
	revision   uint64 // 最后一次写入时的存储版本
}

type storeState struct {
	revision uint64
	entries  map[string]storeEntry
}

// NewStore 创建 Store；writer 为 nil 时只保存在内存中
func NewStore(source CatalogSource, writer AssignmentWriter, opts StoreOptions, logger *zap.Logger) *Store {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ttl := opts.CatalogTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s := &Store{
		source:   source,
		writer:   writer,
		opts:     opts,
		logger:   logger,
		catalogs: cache.New(ttl, 5*time.Minute),
	}
	s.state.Store(&storeState{entries: map[string]storeEntry{}})
	return s
}

// Load 用已持久化的考试安排初始化内存状态
func (s *Store) Load(ctx context.Context, lister AssignmentLister) error {
	list, err := lister.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("加载考试安排失败: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.state.Load()
	next := &storeState{revision: cur.revision + 1, entries: make(map[string]storeEntry, len(list))}
	for _, a := range list {
		next.entries[a.AssignmentID] = storeEntry{assignment: a, revision: next.revision}
	}
	s.state.Store(next)
	s.logger.Info("考试安排加载完成", zap.Int("count", len(list)), zap.Uint64("revision", next.revision))
	return nil
}

// Snapshot 当前时刻的只读视图（维度数据可能来自缓存）
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	cat, err := s.catalog(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.snapshotWith(cat), nil
}

// FreshSnapshot 重新加载维度数据后构建视图，用于提交前的复核
func (s *Store) FreshSnapshot(ctx context.Context) (*Snapshot, error) {
	cat, err := s.catalog(ctx, true)
	if err != nil {
		return nil, err
	}
	return s.snapshotWith(cat), nil
}

// InvalidateCatalog 丢弃缓存的维度数据（外部数据变更后调用）
func (s *Store) InvalidateCatalog() {
	s.catalogs.Delete(catalogCacheKey)
}

func (s *Store) catalog(ctx context.Context, fresh bool) (*Catalog, error) {
	if !fresh && s.opts.CatalogTTL > 0 {
		if v, ok := s.catalogs.Get(catalogCacheKey); ok {
			return v.(*Catalog), nil
		}
	}
	cat, err := s.source.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载维度数据失败: %w", err)
	}
	s.catalogs.SetDefault(catalogCacheKey, cat)
	return cat, nil
}

func (s *Store) snapshotWith(cat *Catalog) *Snapshot {
	st := s.state.Load()
	if last := s.last.Load(); last != nil && last.version == st.revision && last.catalog == cat {
		return last
	}
	list := make([]model.ExamAssignment, 0, len(st.entries))
	for _, e := range st.entries {
		list = append(list, e.assignment)
	}
	snap := NewSnapshot(st.revision, cat, list, s.opts.Location)
	s.last.Store(snap)
	return snap
}

// Apply 写入一条考试安排（AssignmentID 为空或不存在时新增，否则更新）
//
// base 为调用方校验时使用的快照。若 base 之后有其他写入触及相同的考场、
// 教师或学生，返回 errStaleSnapshot，调用方应重新读取快照并复核。
// 持久化失败时内存状态保持不变。
func (s *Store) Apply(ctx context.Context, a model.ExamAssignment, base *Snapshot) (*model.ExamAssignment, model.ExamAssignment, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.state.Load()
	if cur.revision != base.Version() {
		for _, e := range cur.entries {
			if e.revision > base.Version() && touchesSame(&a, &e.assignment, base.Catalog()) {
				return nil, model.ExamAssignment{}, errStaleSnapshot
			}
		}
	}

	now := s.opts.Now()
	a.UpdatedAt = now

	var before *model.ExamAssignment
	prev, exists := cur.entries[a.AssignmentID]
	if exists && a.AssignmentID != "" {
		b := prev.assignment
		before = &b
		a.Version = prev.assignment.Version
		a.CreatedAt = prev.assignment.CreatedAt
		a.CreatedBy = prev.assignment.CreatedBy
		if s.writer != nil {
			if err := s.writer.Update(ctx, &a); err != nil {
				return nil, model.ExamAssignment{}, s.wrapWriteErr(err)
			}
		} else {
			a.Version++
		}
	} else {
		if a.AssignmentID == "" {
			a.AssignmentID = uuid.NewString()
		}
		a.CreatedAt = now
		a.Version = 1
		if s.writer != nil {
			if err := s.writer.Create(ctx, &a); err != nil {
				return nil, model.ExamAssignment{}, s.wrapWriteErr(err)
			}
		}
	}

	next := &storeState{revision: cur.revision + 1, entries: make(map[string]storeEntry, len(cur.entries)+1)}
	for id, e := range cur.entries {
		next.entries[id] = e
	}
	next.entries[a.AssignmentID] = storeEntry{assignment: a, revision: next.revision}
	s.state.Store(next)

	return before, a, nil
}

func (s *Store) wrapWriteErr(err error) error {
	if se, ok := pkgerrors.AsStaleVersion(err); ok {
		s.logger.Warn("持久化版本冲突，内存状态与数据库不一致",
			zap.String("table", se.Table),
			zap.String("id", se.ID),
			zap.Int("version", se.Version))
	}
	if errors.Is(err, pkgerrors.ErrOptimisticLock) {
		return fmt.Errorf("%w: %w", ErrResourceConflict, err)
	}
	return fmt.Errorf("持久化考试安排失败: %w", err)
}

// touchesSame 两条安排是否共享资源（同一记录、考场、教师或注册学生）
func touchesSame(a, b *model.ExamAssignment, catalog *Catalog) bool {
	if a.AssignmentID != "" && a.AssignmentID == b.AssignmentID {
		return true
	}
	if a.RoomID == b.RoomID || a.ProfessorID == b.ProfessorID || a.CourseID == b.CourseID {
		return true
	}
	return sharedStudents(catalog.Registered(a.CourseID), catalog.Registered(b.CourseID)) > 0
}
