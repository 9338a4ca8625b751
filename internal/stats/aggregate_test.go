package stats

import (
	"bytes"
	"encoding/csv"
	"math"
	"testing"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"PRESENCE-backend/internal/domain"
)

func TestDailySummaryCountsMemberOncePerDay(t *testing.T) {
	evs := []domain.InEvent{
		{MemberID: 1, TeamID: 10, Generation: 2, AttendedOn: "2025-06-02"},
		{MemberID: 2, TeamID: 10, Generation: 3, AttendedOn: "2025-06-02"},
		{MemberID: 1, TeamID: 10, Generation: 2, AttendedOn: "2025-06-02"},
		{MemberID: 3, TeamID: NoTeam, Generation: 1, AttendedOn: "2025-06-01"},
	}
	days := DailySummary(evs)
	if len(days) != 2 {
		t.Fatalf("days = %d", len(days))
	}
	if days[0].Date != "2025-06-01" || days[1].Date != "2025-06-02" {
		t.Fatalf("order = %s, %s", days[0].Date, days[1].Date)
	}
	d := days[1]
	if d.Total != 2 {
		t.Errorf("total = %d, want 2", d.Total)
	}
	tc := d.Teams[10]
	if tc == nil || tc.Total != 2 {
		t.Fatalf("team = %+v", tc)
	}
	if tc.Generations[2] != 1 || tc.Generations[3] != 1 {
		t.Errorf("generations = %v", tc.Generations)
	}
	if days[0].Teams[NoTeam].Total != 1 {
		t.Errorf("no team = %+v", days[0].Teams[NoTeam])
	}
}

func TestRollingRate(t *testing.T) {
	tests := []struct {
		name       string
		in         RateInput
		wantDays   int
		wantRate   float64
	}{
		{
			name:     "no active days",
			in:       RateInput{TeamID: 1, TeamSize: 3, From: "2025-06-01", To: "2025-06-30"},
			wantDays: 0, wantRate: 0,
		},
		{
			name: "average over club active days",
			in: RateInput{TeamID: 1, TeamSize: 2, From: "2025-06-01", To: "2025-06-30", Events: []domain.InEvent{
				{MemberID: 1, TeamID: 1, AttendedOn: "2025-06-02"},
				{MemberID: 2, TeamID: 1, AttendedOn: "2025-06-02"},
				{MemberID: 1, TeamID: 1, AttendedOn: "2025-06-02"},
				{MemberID: 9, TeamID: 2, AttendedOn: "2025-06-03"},
			}},
			wantDays: 2, wantRate: 0.5,
		},
		{
			name: "capped at one",
			in: RateInput{TeamID: 1, TeamSize: 1, From: "2025-06-01", To: "2025-06-30", Events: []domain.InEvent{
				{MemberID: 1, TeamID: 1, AttendedOn: "2025-06-02"},
				{MemberID: 2, TeamID: 1, AttendedOn: "2025-06-02"},
			}},
			wantDays: 1, wantRate: 1,
		},
		{
			name: "empty team",
			in: RateInput{TeamID: 1, TeamSize: 0, From: "2025-06-01", To: "2025-06-30", Events: []domain.InEvent{
				{MemberID: 9, TeamID: 2, AttendedOn: "2025-06-02"},
			}},
			wantDays: 1, wantRate: 0,
		},
		{
			name: "outside window ignored",
			in: RateInput{TeamID: 1, TeamSize: 1, From: "2025-06-10", To: "2025-06-30", Events: []domain.InEvent{
				{MemberID: 1, TeamID: 1, AttendedOn: "2025-06-02"},
			}},
			wantDays: 0, wantRate: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RollingRate(tt.in)
			if got.ActiveDays != tt.wantDays || math.Abs(got.Rate-tt.wantRate) > 1e-9 {
				t.Errorf("got %+v, want days=%d rate=%v", got, tt.wantDays, tt.wantRate)
			}
		})
	}
}

func TestRateLowerBound(t *testing.T) {
	got, err := RateLowerBound("2025-06-30", 30, "2025-01-01")
	if err != nil || got != "2025-06-01" {
		t.Errorf("old member: %q, %v", got, err)
	}
	got, _ = RateLowerBound("2025-06-30", 30, "2025-06-20")
	if got != "2025-06-20" {
		t.Errorf("new member: %q", got)
	}
	got, _ = RateLowerBound("2025-03-01", 1, "2024-01-01")
	if got != "2025-03-01" {
		t.Errorf("window 1: %q", got)
	}
}

func TestActivitySeconds(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2025, 6, 2, h, m, 0, 0, time.UTC) }
	evs := []domain.AttendanceEvent{
		{Type: domain.EventIn, OccurredAt: at(11, 0)},
		{Type: domain.EventIn, OccurredAt: at(9, 0)},
		{Type: domain.EventOut, OccurredAt: at(10, 30)},
	}
	sec := ActivitySeconds(evs)
	if sec != 5400 {
		t.Fatalf("seconds = %d", sec)
	}
	if Hours(sec) != 1.5 {
		t.Errorf("hours = %v", Hours(sec))
	}
	// out だけ、in の連続
	if got := ActivitySeconds([]domain.AttendanceEvent{{Type: domain.EventOut, OccurredAt: at(9, 0)}}); got != 0 {
		t.Errorf("lone out = %d", got)
	}
	evs = []domain.AttendanceEvent{
		{Type: domain.EventIn, OccurredAt: at(9, 0)},
		{Type: domain.EventIn, OccurredAt: at(10, 0)},
		{Type: domain.EventOut, OccurredAt: at(10, 15)},
	}
	if got := ActivitySeconds(evs); got != 900 {
		t.Errorf("double in = %d", got)
	}
}

func TestViewOrdering(t *testing.T) {
	days := DailySummary([]domain.InEvent{
		{MemberID: 1, TeamID: NoTeam, Generation: 1, AttendedOn: "2025-06-02"},
		{MemberID: 2, TeamID: 1, Generation: 1, AttendedOn: "2025-06-02"},
		{MemberID: 3, TeamID: 1, Generation: 3, AttendedOn: "2025-06-02"},
		{MemberID: 4, TeamID: 2, Generation: 2, AttendedOn: "2025-06-02"},
	})
	teams := []domain.Team{{ID: 1, Name: "B班"}, {ID: 2, Name: "A班"}}
	v := View(days, teams)
	if len(v) != 1 || len(v[0].Teams) != 3 {
		t.Fatalf("view = %+v", v)
	}
	names := []string{v[0].Teams[0].Name, v[0].Teams[1].Name, v[0].Teams[2].Name}
	if names[0] != "A班" || names[1] != "B班" || names[2] != NoTeamName {
		t.Errorf("team order = %v", names)
	}
	gens := v[0].Teams[1].Generations
	if len(gens) != 2 || gens[0].Generation != 3 || gens[1].Generation != 1 {
		t.Errorf("generations = %+v", gens)
	}
}

func TestWriteCSVShiftJIS(t *testing.T) {
	days := []DayView{
		{Date: "2025-06-02", Total: 3, Teams: []TeamView{{TeamID: 2, Name: "A班", Total: 1}, {TeamID: NoTeam, Name: NoTeamName, Total: 2}}},
		{Date: "2025-06-03", Total: 1, Teams: []TeamView{{TeamID: 1, Name: "B班", Total: 1}}},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, days, EncodingShiftJIS); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(buf.Bytes(), []byte("日付")) {
		t.Fatal("output still utf-8")
	}
	r := csv.NewReader(transform.NewReader(&buf, japanese.ShiftJIS.NewDecoder()))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"日付", "合計", "A班", "B班", NoTeamName},
		{"2025-06-02", "3", "1", "0", "2"},
		{"2025-06-03", "1", "0", "1", "0"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("rows[%d][%d] = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}
}
