package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// GenerateOptions 候选生成参数
type GenerateOptions struct {
	SlotMinutes          int           // 时间格宽度，默认 90
	Limit                int           // 返回条数上限，默认 100
	DayStart             time.Duration // 每日最早开考（距零点），DayEnd 为 0 时不限
	DayEnd               time.Duration // 每日最晚结束（距零点）
	MaxDailyPerProfessor int           // 教师单日上限，默认 3
}

// DefaultGenerateOptions 默认候选生成参数
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{SlotMinutes: 90, Limit: 100, MaxDailyPerProfessor: 3}
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	def := DefaultGenerateOptions()
	if o.SlotMinutes <= 0 {
		o.SlotMinutes = def.SlotMinutes
	}
	if o.Limit <= 0 {
		o.Limit = def.Limit
	}
	if o.MaxDailyPerProfessor <= 0 {
		o.MaxDailyPerProfessor = def.MaxDailyPerProfessor
	}
	return o
}

// Candidate 一条未提交的候选安排
type Candidate struct {
	CourseID        string     `json:"course_id"`
	RoomID          string     `json:"room_id"`
	ProfessorID     string     `json:"professor_id"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Enrolled        int        `json:"enrolled"`
	Capacity        int        `json:"capacity"`
	RoomKind        string     `json:"room_kind"`
	CapacityFit     float64    `json:"capacity_fit"`
	RoomTypeFit     float64    `json:"room_type_fit"`
	Score           float64    `json:"score"`
	Advisories      []Advisory `json:"advisories,omitempty"`
}

// Proposal 将候选转为提交请求
func (c *Candidate) Proposal(examType, actor string) Proposal {
	return Proposal{
		CourseID:        c.CourseID,
		ProfessorID:     c.ProfessorID,
		RoomID:          c.RoomID,
		StartTime:       c.StartTime,
		DurationMinutes: c.DurationMinutes,
		ExamType:        examType,
		Actor:           actor,
	}
}

// ════════════════════════════════════════════════════════════
// Generate — 单轮贪心打分
// ════════════════════════════════════════════════════════════
//
// 只读快照，不做全局最优匹配：结果是局部打分后的候选清单。
// 步骤：
//  1. 有注册学生、且窗口内无活跃安排的课程
//  2. 可用考场 × 时间格（剔除考场已占用的格）
//  3. 当日活跃安排未达上限、且该时间格内未登记不可监考的在岗教师
//  4. 笛卡尔积，注册人数 ≤ 考场容量（硬过滤）
//  5. score = capacityFit × roomTypeFit
//  6. 分数降序、开考时间升序，截取前 Limit 条
//
// ctx 取消时立即返回 ErrCancelled，不产生任何写入。

func Generate(ctx context.Context, view *Snapshot, windowStart, windowEnd time.Time, opts GenerateOptions) ([]Candidate, error) {
	opts = opts.withDefaults()
	if !windowEnd.After(windowStart) {
		return nil, ErrInvalidWindow
	}
	slotLen := time.Duration(opts.SlotMinutes) * time.Minute

	slots := gridSlots(view, windowStart, windowEnd, slotLen, opts)
	courses := schedulableCourses(view, windowStart, windowEnd)
	roomSlots := freeRoomSlots(view, slots, slotLen)
	profsBySlot := availableProfessors(view, slots, slotLen, opts.MaxDailyPerProfessor)

	top := &candidateHeap{}
	for _, courseID := range courses {
		enrolled := view.RegisteredCount(courseID)
		for _, rs := range roomSlots {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			capFit := capacityFit(enrolled, rs.room.Capacity)
			if capFit == 0 {
				continue
			}
			typeFit := roomTypeFit(rs.room.Kind, enrolled)
			for _, profID := range profsBySlot[rs.slot.start.Unix()] {
				top.offer(Candidate{
					CourseID:        courseID,
					RoomID:          rs.room.RoomID,
					ProfessorID:     profID,
					StartTime:       rs.slot.start,
					DurationMinutes: opts.SlotMinutes,
					Enrolled:        enrolled,
					Capacity:        rs.room.Capacity,
					RoomKind:        rs.room.Kind,
					CapacityFit:     capFit,
					RoomTypeFit:     typeFit,
					Score:           capFit * typeFit,
				}, opts.Limit)
			}
		}
	}

	result := top.items
	sort.Slice(result, func(i, j int) bool { return betterCandidate(&result[i], &result[j]) })

	adv := newAdvisor(view)
	for i := range result {
		result[i].Advisories = adv.Advise(result[i].CourseID, result[i].ProfessorID)
	}
	if result == nil {
		result = []Candidate{}
	}
	return result, nil
}

// capacityFit ≤80% 容量得 1.0，≤100% 得 0.8，超出返回 0（剔除）
func capacityFit(enrolled, capacity int) float64 {
	switch {
	case capacity <= 0 || enrolled > capacity:
		return 0
	case float64(enrolled) <= 0.8*float64(capacity):
		return 1.0
	default:
		return 0.8
	}
}

// roomTypeFit 大课(>50人)配阶梯教室、小课配普通教室得 1.0，其余 0.7
func roomTypeFit(kind string, enrolled int) float64 {
	if (kind == model.RoomAmphitheatre && enrolled > 50) || (kind == model.RoomLectureRoom && enrolled <= 50) {
		return 1.0
	}
	return 0.7
}

// betterCandidate 排序：分数降序 → 开考时间升序 → 课程/考场/教师 ID 升序
func betterCandidate(a, b *Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	if a.CourseID != b.CourseID {
		return a.CourseID < b.CourseID
	}
	if a.RoomID != b.RoomID {
		return a.RoomID < b.RoomID
	}
	return a.ProfessorID < b.ProfessorID
}

// ── 枚举辅助 ──

type gridSlot struct {
	start time.Time
	day   string
}

type roomSlot struct {
	room model.Room
	slot gridSlot
}

// gridSlots 时间格：未设每日时段时从窗口起点等距切分；
// 设置了每日时段时，每天从 DayStart 起切分，整格须落在 [DayStart, DayEnd] 与窗口内
func gridSlots(view *Snapshot, windowStart, windowEnd time.Time, slotLen time.Duration, opts GenerateOptions) []gridSlot {
	var slots []gridSlot
	if opts.DayEnd <= 0 {
		for t := windowStart; !t.Add(slotLen).After(windowEnd); t = t.Add(slotLen) {
			slots = append(slots, gridSlot{start: t, day: view.DayOf(t)})
		}
		return slots
	}

	loc := view.Location()
	first := windowStart.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	for day.Before(windowEnd) {
		dayEnd := day.Add(opts.DayEnd)
		for t := day.Add(opts.DayStart); !t.Add(slotLen).After(dayEnd); t = t.Add(slotLen) {
			if t.Before(windowStart) || t.Add(slotLen).After(windowEnd) {
				continue
			}
			slots = append(slots, gridSlot{start: t, day: view.DayOf(t)})
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
	return slots
}

// schedulableCourses 有注册学生且窗口内没有活跃安排的课程，按 ID 升序
func schedulableCourses(view *Snapshot, windowStart, windowEnd time.Time) []string {
	var ids []string
	for id := range view.Catalog().Courses {
		if view.RegisteredCount(id) == 0 {
			continue
		}
		scheduled := false
		for _, a := range view.ActiveForCourse(id) {
			if a.Overlaps(windowStart, windowEnd) {
				scheduled = true
				break
			}
		}
		if !scheduled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// freeRoomSlots 可用考场 × 空闲时间格
func freeRoomSlots(view *Snapshot, slots []gridSlot, slotLen time.Duration) []roomSlot {
	rooms := make([]model.Room, 0, len(view.Catalog().Rooms))
	for _, r := range view.Catalog().Rooms {
		if r.IsAvailable && r.Capacity > 0 {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })

	var out []roomSlot
	for _, r := range rooms {
		booked := view.ActiveForRoom(r.RoomID)
		for _, sl := range slots {
			end := sl.start.Add(slotLen)
			free := true
			for _, a := range booked {
				if a.Overlaps(sl.start, end) {
					free = false
					break
				}
			}
			if free {
				out = append(out, roomSlot{room: r, slot: sl})
			}
		}
	}
	return out
}

// availableProfessors 每个时间格可监考的在岗教师（按开考时间索引），按 ID 升序
// 单日上限按日历日计算一次，不可监考时段逐格过滤
func availableProfessors(view *Snapshot, slots []gridSlot, slotLen time.Duration, maxDaily int) map[int64][]string {
	catalog := view.Catalog()
	profs := make([]string, 0, len(catalog.Professors))
	for id, p := range catalog.Professors {
		if p.IsActive {
			profs = append(profs, id)
		}
	}
	sort.Strings(profs)

	byDay := make(map[string][]string)
	out := make(map[int64][]string, len(slots))
	for _, sl := range slots {
		daily, done := byDay[sl.day]
		if !done {
			daily = make([]string, 0, len(profs))
			for _, id := range profs {
				if view.ProfessorDayCount(id, sl.day, "") < maxDaily {
					daily = append(daily, id)
				}
			}
			byDay[sl.day] = daily
		}
		end := sl.start.Add(slotLen)
		avail := make([]string, 0, len(daily))
		for _, id := range daily {
			if _, busy := catalog.ProfessorUnavailable(id, sl.start, end); !busy {
				avail = append(avail, id)
			}
		}
		out[sl.start.Unix()] = avail
	}
	return out
}

// ── Top-N 小顶堆：堆顶为当前保留集合中最差的候选 ──

type candidateHeap struct {
	items []Candidate
}

func (h *candidateHeap) Len() int           { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool { return betterCandidate(&h.items[j], &h.items[i]) }
func (h *candidateHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x any)         { h.items = append(h.items, x.(Candidate)) }
func (h *candidateHeap) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}

func (h *candidateHeap) offer(c Candidate, limit int) {
	if h.Len() < limit {
		heap.Push(h, c)
		return
	}
	if betterCandidate(&c, &h.items[0]) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}
