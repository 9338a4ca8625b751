package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/notify"
	"PRESENCE-backend/internal/platform/apperr"
	"PRESENCE-backend/internal/platform/metrics"
)

type Store interface {
	MemberByCard(ctx context.Context, cardID string) (*domain.Member, error)
	MemberByID(ctx context.Context, id int64) (*domain.Member, error)
	WithMemberLock(ctx context.Context, memberID int64, fn func(ctx context.Context, l domain.Ledger) error) error
	WithLedgerLock(ctx context.Context, fn func(ctx context.Context, l domain.BulkLedger) error) error
	PresentMembers(ctx context.Context) ([]domain.PresentMember, error)
	EventsForMember(ctx context.Context, memberID int64, from, to string) ([]domain.AttendanceEvent, error)
	ListDailyLogoutLogs(ctx context.Context, limit int) ([]domain.DailyLogoutLogEntry, error)
}

type Options struct {
	Location *time.Location
	// Debounce: 直前のイベントからこの時間内のタップは記録しない（0 で無効）
	Debounce time.Duration
	Clock    domain.Clock
	IDGen    domain.IDGen
	Metrics  *metrics.Metrics
}

type Service struct {
	store    Store
	pub      notify.Publisher
	log      *zap.Logger
	loc      *time.Location
	debounce time.Duration
	clock    domain.Clock
	id       domain.IDGen
	m        *metrics.Metrics
}

func NewService(store Store, pub notify.Publisher, log *zap.Logger, opts Options) *Service {
	s := &Service{
		store:    store,
		pub:      pub,
		log:      log,
		loc:      opts.Location,
		debounce: opts.Debounce,
		clock:    opts.Clock,
		id:       opts.IDGen,
		m:        opts.Metrics,
	}
	if s.pub == nil {
		s.pub = notify.Nop{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.clock == nil {
		s.clock = domain.SystemClock{}
	}
	if s.id == nil {
		s.id = domain.NewULIDGen()
	}
	return s
}

func Message(name string, t domain.EventType) string {
	if t == domain.EventIn {
		return fmt.Sprintf("%sさん、おはようございます。出席を記録しました", name)
	}
	return fmt.Sprintf("%sさん、おつかれさまでした。退出を記録しました", name)
}

func (s *Service) newEvent(memberID int64, t domain.EventType, at time.Time) (domain.AttendanceEvent, error) {
	id, err := s.id.New(at)
	if err != nil {
		return domain.AttendanceEvent{}, err
	}
	return domain.AttendanceEvent{
		ULID:       id,
		MemberID:   memberID,
		Type:       t,
		OccurredAt: at.UTC(),
		AttendedOn: domain.LocalDate(at, s.loc),
	}, nil
}

// POST /kiosk/taps
// 直前イベントの逆を追記する。種別は呼び出し側が選べない
func (s *Service) Tap(ctx context.Context, rawCard string) (TapResponse, error) {
	card := domain.NormalizeCardID(rawCard)
	if card == "" {
		return TapResponse{}, apperr.Invalid("card_id is required")
	}

	m, err := s.store.MemberByCard(ctx, card)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !m.IsActive) {
		s.m.Tap("unknown_card")
		return TapResponse{}, apperr.UnknownCard()
	}
	if err != nil {
		s.m.Tap("error")
		return TapResponse{}, apperr.StoreUnavailable(err)
	}

	var (
		ev        domain.AttendanceEvent
		duplicate bool
	)
	err = s.store.WithMemberLock(ctx, m.ID, func(ctx context.Context, l domain.Ledger) error {
		last, err := l.LatestEventFor(ctx, m.ID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if last != nil && s.debounce > 0 && now.Sub(last.OccurredAt) < s.debounce {
			ev, duplicate = *last, true
			return nil
		}
		next, err := s.newEvent(m.ID, domain.NextAfter(last), now)
		if err != nil {
			return err
		}
		if err := l.AppendEvent(ctx, &next); err != nil {
			return err
		}
		ev = next
		return nil
	})
	if err != nil {
		s.m.Tap("error")
		return TapResponse{}, apperr.StoreUnavailable(err)
	}

	if duplicate {
		s.m.Tap("duplicate")
		s.log.Info("tap debounced", zap.Int64("member_id", m.ID), zap.String("type", string(ev.Type)))
	} else {
		s.m.Tap(string(ev.Type))
		s.log.Info("tap recorded",
			zap.Int64("member_id", m.ID),
			zap.String("type", string(ev.Type)),
			zap.String("event_id", ev.ULID),
		)
		s.publish(ctx, ev)
	}

	return TapResponse{
		OK:        true,
		Message:   Message(m.DisplayName, ev.Type),
		Type:      string(ev.Type),
		Duplicate: duplicate,
		Member:    MemberBrief{ID: m.ID, DisplayName: m.DisplayName},
		Event:     eventToDTO(ev),
	}, nil
}

// POST /admin/attendance/force
// 補正用。指定された種別をそのまま追記する（debounce なし）
func (s *Service) ForceSet(ctx context.Context, actorID int64, req ForceRequest) (EventResponse, error) {
	typ := domain.EventType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !typ.Valid() {
		return EventResponse{}, apperr.Invalid("type must be in or out")
	}
	var ev domain.AttendanceEvent
	err := s.store.WithMemberLock(ctx, req.MemberID, func(ctx context.Context, l domain.Ledger) error {
		next, err := s.newEvent(req.MemberID, typ, s.clock.Now())
		if err != nil {
			return err
		}
		if err := l.AppendEvent(ctx, &next); err != nil {
			return err
		}
		ev = next
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return EventResponse{}, apperr.NotFound("member not found")
	}
	if err != nil {
		return EventResponse{}, apperr.StoreUnavailable(err)
	}
	s.log.Info("attendance forced",
		zap.Int64("actor_id", actorID),
		zap.Int64("member_id", req.MemberID),
		zap.String("type", string(typ)),
	)
	s.publish(ctx, ev)
	return eventToDTO(ev), nil
}

// ForceLogoutAll: in のメンバー全員に out を追記し、件数を監査ログに残す。
// actorID=nil は定時ジョブ。誰もいなければ何もしない
func (s *Service) ForceLogoutAll(ctx context.Context, actorID *int64) (int, error) {
	affected := 0
	err := s.store.WithLedgerLock(ctx, func(ctx context.Context, l domain.BulkLedger) error {
		ids, err := l.MembersCurrentlyIn(ctx)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, id := range ids {
			ev, err := s.newEvent(id, domain.EventOut, now)
			if err != nil {
				return err
			}
			if err := l.AppendEvent(ctx, &ev); err != nil {
				return err
			}
		}
		if len(ids) == 0 {
			return nil
		}
		affected = len(ids)
		return l.InsertDailyLogoutLog(ctx, &domain.DailyLogoutLogEntry{
			ActorID:       actorID,
			AffectedCount: len(ids),
			ExecutedAt:    now.UTC(),
		})
	})
	if err != nil {
		return 0, apperr.StoreUnavailable(err)
	}

	fields := []zap.Field{zap.Int("affected", affected)}
	if actorID != nil {
		fields = append(fields, zap.Int64("actor_id", *actorID))
	}
	s.log.Info("force logout all", fields...)
	s.m.ForcedOut(affected)
	if affected > 0 {
		s.publishRaw(ctx, notify.NewEvent(notify.TypeAttendanceToggled, map[string]any{
			"bulk": true, "type": string(domain.EventOut), "affected": affected,
		}))
	}
	return affected, nil
}

// POST /admin/attendance/force-logout-all
func (s *Service) ForceLogoutAllResponse(ctx context.Context, actorID int64) (ForceLogoutResponse, error) {
	n, err := s.ForceLogoutAll(ctx, &actorID)
	if err != nil {
		return ForceLogoutResponse{}, err
	}
	msg := fmt.Sprintf("%d人を退出にしました", n)
	if n == 0 {
		msg = "在室中のメンバーはいません"
	}
	return ForceLogoutResponse{OK: true, Affected: n, Message: msg}, nil
}

// Status: 最新イベントの種別。イベントなしは out
func (s *Service) Status(ctx context.Context, memberID int64) (StatusResponse, error) {
	var last *domain.AttendanceEvent
	err := s.store.WithMemberLock(ctx, memberID, func(ctx context.Context, l domain.Ledger) error {
		var err error
		last, err = l.LatestEventFor(ctx, memberID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return StatusResponse{}, apperr.NotFound("member not found")
	}
	if err != nil {
		return StatusResponse{}, apperr.StoreUnavailable(err)
	}
	res := StatusResponse{MemberID: memberID, Status: string(domain.EventOut)}
	if last != nil {
		res.Status = string(last.Type)
		t := last.OccurredAt
		res.Since = &t
	}
	return res, nil
}

// GET /admin/attendance/present
func (s *Service) Present(ctx context.Context) ([]PresentResponse, error) {
	rows, err := s.store.PresentMembers(ctx)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out := make([]PresentResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, PresentResponse{
			MemberID:    p.Member.ID,
			DisplayName: p.Member.DisplayName,
			TeamID:      p.Member.TeamID,
			Generation:  p.Member.Generation,
			Since:       p.Since,
		})
	}
	return out, nil
}

// History: month (YYYY-MM) のイベント。空なら当月
func (s *Service) History(ctx context.Context, memberID int64, month string) ([]EventResponse, error) {
	if month == "" {
		month = domain.CurrentMonth(s.clock.Now(), s.loc)
	}
	from, to, err := domain.MonthRange(month)
	if err != nil {
		return nil, apperr.Invalid("month must be YYYY-MM")
	}
	if _, err := s.store.MemberByID(ctx, memberID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.NotFound("member not found")
		}
		return nil, apperr.StoreUnavailable(err)
	}
	evs, err := s.store.EventsForMember(ctx, memberID, from, to)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out := make([]EventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventToDTO(ev))
	}
	return out, nil
}

// GET /admin/logs/logouts
func (s *Service) LogoutLogs(ctx context.Context, limit int) ([]LogoutLogResponse, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	rows, err := s.store.ListDailyLogoutLogs(ctx, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out := make([]LogoutLogResponse, 0, len(rows))
	for _, e := range rows {
		out = append(out, LogoutLogResponse{
			ID: e.ID, ActorID: e.ActorID, AffectedCount: e.AffectedCount, ExecutedAt: e.ExecutedAt,
		})
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, ev domain.AttendanceEvent) {
	s.publishRaw(ctx, notify.NewEvent(notify.TypeAttendanceToggled, map[string]any{
		"member_id": ev.MemberID,
		"type":      string(ev.Type),
		"event_id":  ev.ULID,
	}))
}

func (s *Service) publishRaw(ctx context.Context, ev notify.Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("notify publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
