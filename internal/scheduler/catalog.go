package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// CatalogSource 维度数据（课程、选课、考场、教师）只读来源
// 数据完整性（外键、唯一性）由存储层保证，排考引擎不做校验
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (*Catalog, error)
}

// Catalog 某一时刻的维度数据视图，构建后不可修改
type Catalog struct {
	Courses    map[string]model.Course
	Rooms      map[string]model.Room
	Professors map[string]model.Professor

	// courseID → 已注册（registered）学生ID，升序去重
	registered map[string][]string
	// studentID → 已注册课程ID，升序
	studentCourses map[string][]string
	// professorID → 不可监考时段，按开始时间升序
	unavailable map[string][]model.ProfessorUnavailability
}

// NewCatalog 由存储层查询结果构建维度视图，非 registered 的选课记录被忽略
func NewCatalog(courses []model.Course, rooms []model.Room, professors []model.Professor, enrollments []model.Enrollment, unavailable []model.ProfessorUnavailability) *Catalog {
	c := &Catalog{
		Courses:        make(map[string]model.Course, len(courses)),
		Rooms:          make(map[string]model.Room, len(rooms)),
		Professors:     make(map[string]model.Professor, len(professors)),
		registered:     make(map[string][]string),
		studentCourses: make(map[string][]string),
		unavailable:    make(map[string][]model.ProfessorUnavailability),
	}
	for _, course := range courses {
		c.Courses[course.CourseID] = course
	}
	for _, r := range rooms {
		c.Rooms[r.RoomID] = r
	}
	for _, p := range professors {
		c.Professors[p.ProfessorID] = p
	}

	seen := make(map[string]map[string]bool)
	for _, e := range enrollments {
		if e.Status != model.EnrollmentRegistered {
			continue
		}
		if seen[e.CourseID] == nil {
			seen[e.CourseID] = make(map[string]bool)
		}
		if seen[e.CourseID][e.StudentID] {
			continue
		}
		seen[e.CourseID][e.StudentID] = true
		c.registered[e.CourseID] = append(c.registered[e.CourseID], e.StudentID)
		c.studentCourses[e.StudentID] = append(c.studentCourses[e.StudentID], e.CourseID)
	}
	for courseID := range c.registered {
		sort.Strings(c.registered[courseID])
	}
	for studentID := range c.studentCourses {
		sort.Strings(c.studentCourses[studentID])
	}

	for _, u := range unavailable {
		if !u.EndTime.After(u.StartTime) {
			continue
		}
		c.unavailable[u.ProfessorID] = append(c.unavailable[u.ProfessorID], u)
	}
	for id := range c.unavailable {
		list := c.unavailable[id]
		sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	}
	return c
}

// Registered 课程已注册学生（升序，调用方不得修改）
func (c *Catalog) Registered(courseID string) []string {
	return c.registered[courseID]
}

// RegisteredCount 课程已注册人数
func (c *Catalog) RegisteredCount(courseID string) int {
	return len(c.registered[courseID])
}

// StudentCourses 学生已注册的课程（升序，调用方不得修改）
func (c *Catalog) StudentCourses(studentID string) []string {
	return c.studentCourses[studentID]
}

// ProfessorUnavailable 返回与 [start, end) 相交的第一个不可监考时段
func (c *Catalog) ProfessorUnavailable(professorID string, start, end time.Time) (model.ProfessorUnavailability, bool) {
	for _, u := range c.unavailable[professorID] {
		if !u.StartTime.Before(end) {
			break
		}
		if u.Overlaps(start, end) {
			return u, true
		}
	}
	return model.ProfessorUnavailability{}, false
}

// CourseDepartment 课程所属系
func (c *Catalog) CourseDepartment(courseID string) string {
	course, ok := c.Courses[courseID]
	if !ok {
		return ""
	}
	return course.DepartmentID()
}

// sharedStudents 两个升序学生列表的交集人数
func sharedStudents(a, b []string) int {
	i, j, n := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}
