package stats

import (
	"context"
	"database/sql"

	"PRESENCE-backend/internal/attendance"
	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/db"
	"PRESENCE-backend/internal/teams"
)

// MySQLStore: 集計用の読み取り。メンバー・イベント・班は既存ストアに任せる
type MySQLStore struct {
	db     *sql.DB
	events *attendance.MySQLStore
	teams  *teams.MySQLStore
}

func NewStore(conn *sql.DB) *MySQLStore {
	return &MySQLStore{db: conn, events: attendance.NewStore(conn), teams: teams.NewStore(conn)}
}

var _ Store = (*MySQLStore)(nil)

func (s *MySQLStore) MemberByID(ctx context.Context, id int64) (*domain.Member, error) {
	return s.events.MemberByID(ctx, id)
}

func (s *MySQLStore) EventsForMember(ctx context.Context, memberID int64, from, to string) ([]domain.AttendanceEvent, error) {
	return s.events.EventsForMember(ctx, memberID, from, to)
}

func (s *MySQLStore) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return s.teams.ListTeams(ctx)
}

func (s *MySQLStore) TeamByID(ctx context.Context, id int64) (*domain.Team, error) {
	return s.teams.TeamByID(ctx, id)
}

func (s *MySQLStore) CountTeamMembers(ctx context.Context, teamID int64) (int, error) {
	return s.teams.CountTeamMembers(ctx, teamID)
}

// InEventsBetween: 期間内の in イベントに現在の班・期を付けて返す。
// 月をまたぐ集計でも 1 スナップショットで読む
func (s *MySQLStore) InEventsBetween(ctx context.Context, from, to string) ([]domain.InEvent, error) {
	out := []domain.InEvent{}
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		rows, err := tx.QueryContext(ctx, `
		SELECT a.user_id, COALESCE(u.team_id, 0), u.generation, DATE_FORMAT(a.attended_on, '%Y-%m-%d'), a.occurred_at
		FROM attendances a
		JOIN users u ON u.id = a.user_id
		WHERE a.type = 'in' AND a.attended_on BETWEEN ? AND ?
		ORDER BY a.attended_on ASC, a.occurred_at ASC, a.id ASC`, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ev domain.InEvent
			if err := rows.Scan(&ev.MemberID, &ev.TeamID, &ev.Generation, &ev.AttendedOn, &ev.OccurredAt); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
