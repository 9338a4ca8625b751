// Package stats は月次集計と出席率の計算。
// 集計関数は純粋関数で、Service が取得と整形を受け持つ
package stats

import (
	"sort"
	"time"

	"PRESENCE-backend/internal/domain"
)

// NoTeam: 未所属メンバーの集計キー
const NoTeam int64 = 0

// PresentDays: in イベントのある日付（昇順・重複なし）。out は見ない
func PresentDays(events []domain.AttendanceEvent) []string {
	seen := make(map[string]struct{})
	days := []string{}
	for _, ev := range events {
		if ev.Type != domain.EventIn {
			continue
		}
		if _, ok := seen[ev.AttendedOn]; ok {
			continue
		}
		seen[ev.AttendedOn] = struct{}{}
		days = append(days, ev.AttendedOn)
	}
	sort.Strings(days)
	return days
}

type TeamCount struct {
	Total       int
	Generations map[int]int
}

type DayCount struct {
	Date  string
	Total int
	Teams map[int64]*TeamCount
}

// DailySummary: 日付ごとにメンバーを1回だけ数え、班・期で内訳を出す（日付昇順）
func DailySummary(events []domain.InEvent) []DayCount {
	byDate := make(map[string]*DayCount)
	seen := make(map[string]map[int64]struct{})

	for _, ev := range events {
		d, ok := byDate[ev.AttendedOn]
		if !ok {
			d = &DayCount{Date: ev.AttendedOn, Teams: make(map[int64]*TeamCount)}
			byDate[ev.AttendedOn] = d
			seen[ev.AttendedOn] = make(map[int64]struct{})
		}
		if _, dup := seen[ev.AttendedOn][ev.MemberID]; dup {
			continue
		}
		seen[ev.AttendedOn][ev.MemberID] = struct{}{}

		d.Total++
		tc, ok := d.Teams[ev.TeamID]
		if !ok {
			tc = &TeamCount{Generations: make(map[int]int)}
			d.Teams[ev.TeamID] = tc
		}
		tc.Total++
		tc.Generations[ev.Generation]++
	}

	out := make([]DayCount, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// RateInput: 出席率の入力。Events は [From, To] を含む期間の in イベント
type RateInput struct {
	Events   []domain.InEvent
	TeamID   int64
	TeamSize int
	From     string
	To       string
}

type Rate struct {
	ActiveDays int
	Rate       float64
}

// RollingRate: 部全体で誰かが in した日を活動日とし、
// 活動日ごとの「班の出席人数 / 班の人数」を平均する。
// 班の人数 0 の日は 0、活動日 0 なら 0
func RollingRate(in RateInput) Rate {
	active := make(map[string]struct{})
	teamIn := make(map[string]map[int64]struct{})
	for _, ev := range in.Events {
		if ev.AttendedOn < in.From || ev.AttendedOn > in.To {
			continue
		}
		active[ev.AttendedOn] = struct{}{}
		if ev.TeamID != in.TeamID {
			continue
		}
		if teamIn[ev.AttendedOn] == nil {
			teamIn[ev.AttendedOn] = make(map[int64]struct{})
		}
		teamIn[ev.AttendedOn][ev.MemberID] = struct{}{}
	}

	if len(active) == 0 {
		return Rate{}
	}
	var sum float64
	for day := range active {
		sum += dayRate(len(teamIn[day]), in.TeamSize)
	}
	return Rate{ActiveDays: len(active), Rate: sum / float64(len(active))}
}

func dayRate(present, size int) float64 {
	if size <= 0 {
		return 0
	}
	r := float64(present) / float64(size)
	// 無効化済みメンバーの出席で人数を超えることがある
	if r > 1 {
		return 1
	}
	return r
}

// RateLowerBound: max(today-(window-1), 登録日)
func RateLowerBound(today string, window int, registeredOn string) (string, error) {
	t, err := time.Parse(domain.DateLayout, today)
	if err != nil {
		return "", err
	}
	if window < 1 {
		window = 1
	}
	lower := t.AddDate(0, 0, -(window - 1)).Format(domain.DateLayout)
	if registeredOn > lower {
		lower = registeredOn
	}
	return lower, nil
}

// ActivitySeconds: 時刻順に in→out を対にして秒数を合計する。
// out の前に次の in が来たら前の in は捨てる。対のない out も無視
func ActivitySeconds(events []domain.AttendanceEvent) int64 {
	sorted := make([]domain.AttendanceEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OccurredAt.Before(sorted[j].OccurredAt) })

	var (
		total int64
		open  *time.Time
	)
	for i := range sorted {
		ev := sorted[i]
		switch ev.Type {
		case domain.EventIn:
			t := ev.OccurredAt
			open = &t
		case domain.EventOut:
			if open != nil {
				total += int64(ev.OccurredAt.Sub(*open) / time.Second)
				open = nil
			}
		}
	}
	return total
}

func Hours(seconds int64) float64 {
	return float64(seconds) / 3600
}
