package stats

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/apperr"
)

const (
	StatusPresent = "present"
	NoTeamName    = "未所属"
)

type Store interface {
	MemberByID(ctx context.Context, id int64) (*domain.Member, error)
	EventsForMember(ctx context.Context, memberID int64, from, to string) ([]domain.AttendanceEvent, error)
	InEventsBetween(ctx context.Context, from, to string) ([]domain.InEvent, error)
	ListTeams(ctx context.Context) ([]domain.Team, error)
	TeamByID(ctx context.Context, id int64) (*domain.Team, error)
	CountTeamMembers(ctx context.Context, teamID int64) (int, error)
}

type Options struct {
	Location   *time.Location
	WindowDays int
	Grade      domain.GradeRule
	Clock      domain.Clock
}

type Service struct {
	store  Store
	log    *zap.Logger
	loc    *time.Location
	window int
	grade  domain.GradeRule
	clock  domain.Clock
}

func NewService(store Store, log *zap.Logger, opts Options) *Service {
	s := &Service{
		store:  store,
		log:    log,
		loc:    opts.Location,
		window: opts.WindowDays,
		grade:  opts.Grade,
		clock:  opts.Clock,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.window <= 0 {
		s.window = 30
	}
	if s.clock == nil {
		s.clock = domain.SystemClock{}
	}
	return s
}

func (s *Service) monthRange(month string) (string, string, string, error) {
	if month == "" {
		month = domain.CurrentMonth(s.clock.Now(), s.loc)
	}
	from, to, err := domain.MonthRange(month)
	if err != nil {
		return "", "", "", apperr.Invalid("month must be YYYY-MM")
	}
	return month, from, to, nil
}

func (s *Service) member(ctx context.Context, id int64) (*domain.Member, error) {
	m, err := s.store.MemberByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.NotFound("member not found")
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return m, nil
}

// MemberMonth: 月内で in のある日を present として返す
func (s *Service) MemberMonth(ctx context.Context, memberID int64, month string) (MemberMonthResponse, error) {
	month, from, to, err := s.monthRange(month)
	if err != nil {
		return MemberMonthResponse{}, err
	}
	if _, err := s.member(ctx, memberID); err != nil {
		return MemberMonthResponse{}, err
	}
	evs, err := s.store.EventsForMember(ctx, memberID, from, to)
	if err != nil {
		return MemberMonthResponse{}, apperr.StoreUnavailable(err)
	}
	res := MemberMonthResponse{MemberID: memberID, Month: month, Days: []DayStatus{}}
	for _, d := range PresentDays(evs) {
		res.Days = append(res.Days, DayStatus{Date: d, Status: StatusPresent})
	}
	return res, nil
}

// MemberSummary: 出席日数と活動時間。所属班があれば班の出席率も付ける
func (s *Service) MemberSummary(ctx context.Context, memberID int64, month string) (MemberSummaryResponse, error) {
	month, from, to, err := s.monthRange(month)
	if err != nil {
		return MemberSummaryResponse{}, err
	}
	m, err := s.member(ctx, memberID)
	if err != nil {
		return MemberSummaryResponse{}, err
	}
	evs, err := s.store.EventsForMember(ctx, memberID, from, to)
	if err != nil {
		return MemberSummaryResponse{}, apperr.StoreUnavailable(err)
	}
	sec := ActivitySeconds(evs)
	res := MemberSummaryResponse{
		MemberID:     memberID,
		Month:        month,
		DaysAttended: len(PresentDays(evs)),
		TotalSeconds: sec,
		TotalHours:   Hours(sec),
		Grade:        s.grade.Label(m.Generation, s.clock.Now()),
	}
	if m.TeamID != nil {
		rate, err := s.rate(ctx, *m.TeamID, m, 0)
		if err != nil {
			return MemberSummaryResponse{}, err
		}
		res.TeamRate = &rate
	}
	return res, nil
}

// DailySummary: 月内の日別集計。班は名前順（未所属は最後）、期は新しい順
func (s *Service) DailySummary(ctx context.Context, month string) (DailySummaryResponse, error) {
	month, from, to, err := s.monthRange(month)
	if err != nil {
		return DailySummaryResponse{}, err
	}
	evs, err := s.store.InEventsBetween(ctx, from, to)
	if err != nil {
		return DailySummaryResponse{}, apperr.StoreUnavailable(err)
	}
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return DailySummaryResponse{}, apperr.StoreUnavailable(err)
	}
	return DailySummaryResponse{Month: month, Days: View(DailySummary(evs), teams)}, nil
}

// View: 集計結果を表示順に並べる
func View(days []DayCount, teams []domain.Team) []DayView {
	names := make(map[int64]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}

	out := make([]DayView, 0, len(days))
	for _, d := range days {
		dv := DayView{Date: d.Date, Total: d.Total, Teams: make([]TeamView, 0, len(d.Teams))}
		for id, tc := range d.Teams {
			name, ok := names[id]
			if !ok || id == NoTeam {
				name = NoTeamName
			}
			tv := TeamView{TeamID: id, Name: name, Total: tc.Total, Generations: make([]GenerationCount, 0, len(tc.Generations))}
			for g, n := range tc.Generations {
				tv.Generations = append(tv.Generations, GenerationCount{Generation: g, Count: n})
			}
			sort.Slice(tv.Generations, func(i, j int) bool { return tv.Generations[i].Generation > tv.Generations[j].Generation })
			dv.Teams = append(dv.Teams, tv)
		}
		sort.Slice(dv.Teams, func(i, j int) bool { return teamLess(dv.Teams[i], dv.Teams[j]) })
		out = append(out, dv)
	}
	return out
}

// TeamRate: GET /stats/teams/:id/rate。期間の下限は依頼者の登録日で切る
func (s *Service) TeamRate(ctx context.Context, teamID, requesterID int64, window int) (RateResponse, error) {
	if _, err := s.store.TeamByID(ctx, teamID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RateResponse{}, apperr.NotFound("team not found")
		}
		return RateResponse{}, apperr.StoreUnavailable(err)
	}
	m, err := s.member(ctx, requesterID)
	if err != nil {
		return RateResponse{}, err
	}
	return s.rate(ctx, teamID, m, window)
}

func (s *Service) rate(ctx context.Context, teamID int64, requester *domain.Member, window int) (RateResponse, error) {
	if window <= 0 {
		window = s.window
	}
	now := s.clock.Now()
	today := domain.LocalDate(now, s.loc)
	from, err := RateLowerBound(today, window, domain.LocalDate(requester.CreatedAt, s.loc))
	if err != nil {
		return RateResponse{}, apperr.Internal("bad date", err)
	}
	size, err := s.store.CountTeamMembers(ctx, teamID)
	if err != nil {
		return RateResponse{}, apperr.StoreUnavailable(err)
	}
	res := RateResponse{TeamID: teamID, WindowDays: window, From: from, To: today, TeamSize: size}
	if from > today {
		return res, nil
	}
	evs, err := s.store.InEventsBetween(ctx, from, today)
	if err != nil {
		return RateResponse{}, apperr.StoreUnavailable(err)
	}
	r := RollingRate(RateInput{Events: evs, TeamID: teamID, TeamSize: size, From: from, To: today})
	res.ActiveDays = r.ActiveDays
	res.Rate = r.Rate
	return res, nil
}
