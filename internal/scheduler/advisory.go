package scheduler

import (
	"fmt"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// 提示类型（不阻断提交）
const (
	AdvisoryProfessorAboveAverage = "professor_above_average"
	AdvisoryCrossDepartment       = "cross_department"
)

// Advisory 非阻断提示，附在候选或提交结果上
type Advisory struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// advisor 基于单个快照计算提示，平均负载只算一次
type advisor struct {
	view    *Snapshot
	average float64
}

func newAdvisor(view *Snapshot) *advisor {
	active := 0
	total := 0
	for _, p := range view.Catalog().Professors {
		if !p.IsActive {
			continue
		}
		active++
		total += len(view.ActiveForProfessor(p.ProfessorID))
	}
	adv := &advisor{view: view}
	if active > 0 {
		adv.average = float64(total) / float64(active)
	}
	return adv
}

// Advise 计算提示：教师负载高于全体平均、跨系监考
func (a *advisor) Advise(courseID, professorID string) []Advisory {
	var out []Advisory
	prof, ok := a.view.Catalog().Professors[professorID]
	if !ok {
		return nil
	}

	load := len(a.view.ActiveForProfessor(professorID))
	if float64(load) > a.average {
		out = append(out, Advisory{
			Kind:   AdvisoryProfessorAboveAverage,
			Detail: fmt.Sprintf("教师 %s 已有 %d 场监考，高于平均 %.1f", prof.Name, load, a.average),
		})
	}

	if dept := a.view.Catalog().CourseDepartment(courseID); dept != "" && dept != prof.DepartmentID {
		out = append(out, Advisory{
			Kind:   AdvisoryCrossDepartment,
			Detail: fmt.Sprintf("教师 %s 不属于课程 %s 的开课系", prof.Name, courseLabel(a.view.Catalog(), courseID)),
		})
	}
	return out
}

// Advise 单条考试安排的提示
func Advise(a *model.ExamAssignment, view *Snapshot) []Advisory {
	return newAdvisor(view).Advise(a.CourseID, a.ProfessorID)
}
