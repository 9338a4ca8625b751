package memstore

import (
	"context"
	"sort"

	"PRESENCE-backend/internal/domain"
)

// ledger: s.mu を保持した状態でのみ使う
type ledger struct{ s *Store }

func (l ledger) LatestEventFor(_ context.Context, memberID int64) (*domain.AttendanceEvent, error) {
	return l.s.latestLocked(memberID), nil
}

func (l ledger) AppendEvent(_ context.Context, ev *domain.AttendanceEvent) error {
	l.s.appendEventLocked(ev)
	return nil
}

func (l ledger) MembersCurrentlyIn(_ context.Context) ([]int64, error) {
	var ids []int64
	for id := range l.s.members {
		if ev := l.s.latestLocked(id); ev != nil && ev.Type == domain.EventIn {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (l ledger) InsertDailyLogoutLog(_ context.Context, e *domain.DailyLogoutLogEntry) error {
	e.ID = l.s.nextID("daily_logout_logs")
	l.s.logoutLogs = append(l.s.logoutLogs, *e)
	return nil
}

func (s *Store) latestLocked(memberID int64) *domain.AttendanceEvent {
	var latest *domain.AttendanceEvent
	for i := range s.events {
		ev := &s.events[i]
		if ev.MemberID != memberID {
			continue
		}
		if latest == nil || ev.OccurredAt.After(latest.OccurredAt) ||
			(ev.OccurredAt.Equal(latest.OccurredAt) && ev.ID > latest.ID) {
			latest = ev
		}
	}
	if latest == nil {
		return nil
	}
	cp := *latest
	return &cp
}

func (s *Store) appendEventLocked(ev *domain.AttendanceEvent) {
	ev.ID = s.nextID("attendances")
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now()
	}
	s.events = append(s.events, *ev)
}

// WithMemberLock: メンバーがいなければ domain.ErrNotFound（FOR UPDATE の行なしと同じ）
func (s *Store) WithMemberLock(ctx context.Context, memberID int64, fn func(ctx context.Context, l domain.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[memberID]; !ok {
		return domain.ErrNotFound
	}
	return s.atomic(func() error { return fn(ctx, ledger{s}) })
}

func (s *Store) WithLedgerLock(ctx context.Context, fn func(ctx context.Context, l domain.BulkLedger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atomic(func() error { return fn(ctx, ledger{s}) })
}

// atomic: fn がエラーを返したら追記分を巻き戻す（tx の rollback 相当）
func (s *Store) atomic(fn func() error) error {
	nEvents, nLogs := len(s.events), len(s.logoutLogs)
	if err := fn(); err != nil {
		s.events = s.events[:nEvents]
		s.logoutLogs = s.logoutLogs[:nLogs]
		return err
	}
	return nil
}

// PresentMembers: 最新イベントが in のメンバー（in した時刻順）
func (s *Store) PresentMembers(_ context.Context) ([]domain.PresentMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.PresentMember{}
	for id, m := range s.members {
		ev := s.latestLocked(id)
		if ev == nil || ev.Type != domain.EventIn {
			continue
		}
		out = append(out, domain.PresentMember{Member: *copyMember(m), Since: ev.OccurredAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out, nil
}

// EventsForMember: attended_on が [from, to] のイベントを時刻昇順で
func (s *Store) EventsForMember(_ context.Context, memberID int64, from, to string) ([]domain.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.AttendanceEvent{}
	for _, ev := range s.events {
		if ev.MemberID == memberID && ev.AttendedOn >= from && ev.AttendedOn <= to {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out, nil
}

// InEventsBetween: 期間内の in イベントに現在の所属・期を付けて返す
func (s *Store) InEventsBetween(_ context.Context, from, to string) ([]domain.InEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := []domain.AttendanceEvent{}
	for _, ev := range s.events {
		if ev.Type == domain.EventIn && ev.AttendedOn >= from && ev.AttendedOn <= to {
			evs = append(evs, ev)
		}
	}
	sortEvents(evs)

	out := make([]domain.InEvent, 0, len(evs))
	for _, ev := range evs {
		m, ok := s.members[ev.MemberID]
		if !ok {
			continue
		}
		in := domain.InEvent{
			MemberID:   ev.MemberID,
			Generation: m.Generation,
			AttendedOn: ev.AttendedOn,
			OccurredAt: ev.OccurredAt,
		}
		if m.TeamID != nil {
			in.TeamID = *m.TeamID
		}
		out = append(out, in)
	}
	return out, nil
}

func (s *Store) ListDailyLogoutLogs(_ context.Context, limit int) ([]domain.DailyLogoutLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.DailyLogoutLogEntry{}
	for i := len(s.logoutLogs) - 1; i >= 0; i-- {
		out = append(out, s.logoutLogs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func sortEvents(evs []domain.AttendanceEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].OccurredAt.Equal(evs[j].OccurredAt) {
			return evs[i].ID < evs[j].ID
		}
		return evs[i].OccurredAt.Before(evs[j].OccurredAt)
	})
}
