package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// 资源键前缀，数字前缀决定全局加锁顺序：考场 → 教师 → 学生
const (
	lockPrefixRoom      = "1:room:"
	lockPrefixProfessor = "2:professor:"
	lockPrefixStudent   = "3:student:"
)

// LockManager 按资源键加锁的互斥表
// 同一键上的等待者按到达顺序获得锁（channel 发送队列为 FIFO）
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLockManager 创建 LockManager
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*keyLock)}
}

// Acquire 按排序后的顺序依次获取全部资源键；ctx 结束时释放已持有的锁并返回 ctx 错误
func (m *LockManager) Acquire(ctx context.Context, keys []string) (release func(), err error) {
	keys = normalizeKeys(keys)
	held := make([]*keyLock, 0, len(keys))
	heldKeys := make([]string, 0, len(keys))

	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			m.unref(heldKeys[i])
		}
	}

	for _, k := range keys {
		l := m.ref(k)
		select {
		case l.ch <- struct{}{}:
			held = append(held, l)
			heldKeys = append(heldKeys, k)
		case <-ctx.Done():
			m.unref(k)
			releaseAll()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

func (m *LockManager) ref(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *LockManager) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// size 当前登记的键数量（测试用）
func (m *LockManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func normalizeKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	// 去重，避免同一键重复加锁造成自锁
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

// resourceKeys 一次提交涉及的资源：考场、教师、课程全部注册学生
func resourceKeys(a *model.ExamAssignment, catalog *Catalog) []string {
	students := catalog.Registered(a.CourseID)
	keys := make([]string, 0, 2+len(students))
	keys = append(keys, lockPrefixRoom+a.RoomID, lockPrefixProfessor+a.ProfessorID)
	for _, s := range students {
		keys = append(keys, lockPrefixStudent+s)
	}
	return keys
}
