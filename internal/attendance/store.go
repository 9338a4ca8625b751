package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/members"
	"PRESENCE-backend/internal/platform/db"
)

// EventColumns: attendances の SELECT 列（ScanEvent と対で使う）
const EventColumns = `id, event_ulid, user_id, type, occurred_at, DATE_FORMAT(attended_on, '%Y-%m-%d'), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func ScanEvent(r rowScanner) (*domain.AttendanceEvent, error) {
	var (
		ev  domain.AttendanceEvent
		typ string
	)
	if err := r.Scan(&ev.ID, &ev.ULID, &ev.MemberID, &typ, &ev.OccurredAt, &ev.AttendedOn, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Type = domain.EventType(typ)
	return &ev, nil
}

// latestPerMember: メンバーごとの最新イベント（同時刻は id の大きい方）
const latestPerMember = `
	SELECT user_id, type, occurred_at
	FROM (
		SELECT user_id, type, occurred_at,
		       ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY occurred_at DESC, id DESC) AS rn
		FROM attendances
	) latest
	WHERE rn = 1`

// MySQLStore: MySQL 実装
type MySQLStore struct{ db *sql.DB }

func NewStore(conn *sql.DB) *MySQLStore { return &MySQLStore{db: conn} }

var _ Store = (*MySQLStore)(nil)

func (s *MySQLStore) MemberByCard(ctx context.Context, cardID string) (*domain.Member, error) {
	return members.FindMember(ctx, s.db, "card_id", cardID)
}

func (s *MySQLStore) MemberByID(ctx context.Context, id int64) (*domain.Member, error) {
	return members.FindMember(ctx, s.db, "id", id)
}

// WithMemberLock: users 行の FOR UPDATE で同一メンバーの打刻を直列化
func (s *MySQLStore) WithMemberLock(ctx context.Context, memberID int64, fn func(ctx context.Context, l domain.Ledger) error) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := db.LockMember(ctx, tx, memberID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		return fn(ctx, ledger{q: tx})
	})
}

// WithLedgerLock: 全 users 行を id 順にロック（個別ロックと同じ順序でデッドロックを避ける）
func (s *MySQLStore) WithLedgerLock(ctx context.Context, fn func(ctx context.Context, l domain.BulkLedger) error) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM users ORDER BY id FOR UPDATE`)
		if err != nil {
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}
		return fn(ctx, ledger{q: tx})
	})
}

type ledger struct{ q db.DBTX }

func (l ledger) LatestEventFor(ctx context.Context, memberID int64) (*domain.AttendanceEvent, error) {
	row := l.q.QueryRowContext(ctx, `
	SELECT `+EventColumns+`
	FROM attendances
	WHERE user_id = ?
	ORDER BY occurred_at DESC, id DESC
	LIMIT 1`, memberID)
	ev, err := ScanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func (l ledger) AppendEvent(ctx context.Context, ev *domain.AttendanceEvent) error {
	created := time.Now().UTC()
	res, err := l.q.ExecContext(ctx, `
	INSERT INTO attendances (event_ulid, user_id, type, occurred_at, attended_on, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ULID, ev.MemberID, string(ev.Type), ev.OccurredAt.UTC(), ev.AttendedOn, created)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = id
	ev.CreatedAt = created
	return nil
}

func (l ledger) MembersCurrentlyIn(ctx context.Context) ([]int64, error) {
	rows, err := l.q.QueryContext(ctx, `SELECT user_id FROM (`+latestPerMember+`) cur WHERE type = 'in' ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l ledger) InsertDailyLogoutLog(ctx context.Context, e *domain.DailyLogoutLogEntry) error {
	var actor any
	if e.ActorID != nil {
		actor = *e.ActorID
	}
	res, err := l.q.ExecContext(ctx, `
	INSERT INTO daily_logout_logs (actor_id, affected_count, executed_at) VALUES (?, ?, ?)`,
		actor, e.AffectedCount, e.ExecutedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// PresentMembers: 最新イベントが in のメンバー（in した時刻順）
func (s *MySQLStore) PresentMembers(ctx context.Context) ([]domain.PresentMember, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT u.id, u.external_id, u.display_name, u.card_id, u.generation, u.team_id, u.role, u.is_active, u.created_at, u.updated_at,
	       cur.occurred_at
	FROM (`+latestPerMember+`) cur
	JOIN users u ON u.id = cur.user_id
	WHERE cur.type = 'in'
	ORDER BY cur.occurred_at ASC, u.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PresentMember{}
	for rows.Next() {
		var (
			p      domain.PresentMember
			teamID sql.NullInt64
			role   string
		)
		m := &p.Member
		if err := rows.Scan(&m.ID, &m.ExternalID, &m.DisplayName, &m.CardID, &m.Generation,
			&teamID, &role, &m.IsActive, &m.CreatedAt, &m.UpdatedAt, &p.Since); err != nil {
			return nil, err
		}
		if teamID.Valid {
			id := teamID.Int64
			m.TeamID = &id
		}
		m.Role = domain.Role(role)
		out = append(out, p)
	}
	return out, rows.Err()
}

// EventsForMember: attended_on が [from, to] のイベントを時刻昇順で
func (s *MySQLStore) EventsForMember(ctx context.Context, memberID int64, from, to string) ([]domain.AttendanceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+EventColumns+`
	FROM attendances
	WHERE user_id = ? AND attended_on BETWEEN ? AND ?
	ORDER BY occurred_at ASC, id ASC`, memberID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AttendanceEvent{}
	for rows.Next() {
		ev, err := ScanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *MySQLStore) ListDailyLogoutLogs(ctx context.Context, limit int) ([]domain.DailyLogoutLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
	SELECT id, actor_id, affected_count, executed_at
	FROM daily_logout_logs
	ORDER BY id DESC
	LIMIT %d`, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DailyLogoutLogEntry{}
	for rows.Next() {
		var (
			e     domain.DailyLogoutLogEntry
			actor sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &actor, &e.AffectedCount, &e.ExecutedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			id := actor.Int64
			e.ActorID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ domain.BulkLedger = ledger{}
