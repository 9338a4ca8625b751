package domain

import (
	"fmt"
	"time"
)

// LocalDate: 時刻をローカル日付（YYYY-MM-DD）に落とす
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// MonthRange: "2006-01" → その月の初日と末日（YYYY-MM-DD）
func MonthRange(month string) (string, string, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", fmt.Errorf("month must be YYYY-MM: %w", err)
	}
	last := first.AddDate(0, 1, -1)
	return first.Format(DateLayout), last.Format(DateLayout), nil
}

// CurrentMonth: ローカル時刻基準の当月
func CurrentMonth(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01")
}
