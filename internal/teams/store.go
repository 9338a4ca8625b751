package teams

import (
	"context"
	"database/sql"
	"errors"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/db"
)

type MySQLStore struct{ db *sql.DB }

func NewStore(conn *sql.DB) *MySQLStore { return &MySQLStore{db: conn} }

var _ Store = (*MySQLStore)(nil)

func (s *MySQLStore) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM teams ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Team{}
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *MySQLStore) TeamByID(ctx context.Context, id int64) (*domain.Team, error) {
	var t domain.Team
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM teams WHERE id = ?`, id).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MySQLStore) CreateTeam(ctx context.Context, t *domain.Team) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO teams (name) VALUES (?)`, t.Name)
	if err != nil {
		if _, dup := db.DuplicateKey(err); dup {
			return domain.ErrDuplicateTeamName
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (s *MySQLStore) RenameTeam(ctx context.Context, id int64, name string) error {
	if _, err := s.TeamByID(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE teams SET name = ? WHERE id = ?`, name, id); err != nil {
		if _, dup := db.DuplicateKey(err); dup {
			return domain.ErrDuplicateTeamName
		}
		return err
	}
	return nil
}

// DeleteTeam: fk_users_team (RESTRICT) に任せる
func (s *MySQLStore) DeleteTeam(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		if db.ForeignKeyViolation(err) {
			return domain.ErrInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *MySQLStore) CountTeamMembers(ctx context.Context, teamID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE team_id = ? AND is_active = 1`, teamID).Scan(&n)
	return n, err
}
