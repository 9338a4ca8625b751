package domain

import (
	"fmt"
	"time"
)

// GradeRule: 期（generation）→ 学年表示。1期生が BaseYear 年度入学
type GradeRule struct {
	BaseYear int
	MaxGrade int
	Location *time.Location
}

// AcademicYear: 4月始まり
func AcademicYear(now time.Time, loc *time.Location) int {
	t := now.In(loc)
	if t.Month() < time.April {
		return t.Year() - 1
	}
	return t.Year()
}

// Label: "{n}年" / "OB" / "入学前"。BaseYear 未設定なら空文字
func (r GradeRule) Label(generation int, now time.Time) string {
	if r.BaseYear == 0 || generation <= 0 {
		return ""
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	grade := AcademicYear(now, loc) - (r.BaseYear + generation - 1) + 1
	switch {
	case grade < 1:
		return "入学前"
	case grade > r.MaxGrade:
		return "OB"
	default:
		return fmt.Sprintf("%d年", grade)
	}
}
