package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/db"
)

// Columns: users の SELECT 列（ScanMember と対で使う）
const Columns = `id, external_id, display_name, card_id, generation, team_id, role, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func ScanMember(r rowScanner) (*domain.Member, error) {
	var (
		m      domain.Member
		teamID sql.NullInt64
		role   string
	)
	if err := r.Scan(&m.ID, &m.ExternalID, &m.DisplayName, &m.CardID, &m.Generation,
		&teamID, &role, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if teamID.Valid {
		id := teamID.Int64
		m.TeamID = &id
	}
	m.Role = domain.Role(role)
	return &m, nil
}

// FindMember: users から1件。なければ domain.ErrNotFound
func FindMember(ctx context.Context, q db.DBTX, column string, arg any) (*domain.Member, error) {
	row := q.QueryRowContext(ctx, `SELECT `+Columns+` FROM users WHERE `+column+` = ?`, arg)
	m, err := ScanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

// MapDuplicate: uq_users_* の衝突をドメインエラーへ
func MapDuplicate(err error) error {
	key, ok := db.DuplicateKey(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(key, "external_id"):
		return domain.ErrDuplicateExternalID
	case strings.Contains(key, "display_name"):
		return domain.ErrDuplicateDisplayName
	case strings.Contains(key, "card_id"):
		return domain.ErrDuplicateCard
	}
	return err
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// MySQLStore: MySQL 実装
type MySQLStore struct{ db *sql.DB }

func NewStore(conn *sql.DB) *MySQLStore { return &MySQLStore{db: conn} }

var _ Store = (*MySQLStore)(nil)

func (s *MySQLStore) MemberByID(ctx context.Context, id int64) (*domain.Member, error) {
	return FindMember(ctx, s.db, "id", id)
}

func (s *MySQLStore) MemberByExternalID(ctx context.Context, externalID string) (*domain.Member, error) {
	return FindMember(ctx, s.db, "external_id", externalID)
}

func (s *MySQLStore) ListMembers(ctx context.Context, f domain.MemberFilter) ([]domain.Member, error) {
	var (
		wheres []string
		args   []any
	)
	if f.ActiveOnly {
		wheres = append(wheres, "is_active = 1")
	}
	if f.TeamID != nil {
		wheres = append(wheres, "team_id = ?")
		args = append(args, *f.TeamID)
	}
	q := `SELECT ` + Columns + ` FROM users`
	if len(wheres) > 0 {
		q += " WHERE " + strings.Join(wheres, " AND ")
	}
	q += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Member{}
	for rows.Next() {
		m, err := ScanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateMember: users の更新と user_edit_logs の追記を同一 tx で
func (s *MySQLStore) UpdateMember(ctx context.Context, m *domain.Member, logs []domain.UserEditLogEntry) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET display_name = ?, card_id = ?, generation = ?, team_id = ?, role = ?, is_active = ?, updated_at = UTC_TIMESTAMP(3)
		WHERE id = ?`,
			m.DisplayName, m.CardID, m.Generation, nullableID(m.TeamID), string(m.Role), db.BoolToInt(m.IsActive), m.ID)
		if err != nil {
			if db.MissingReference(err) {
				return domain.ErrNotFound
			}
			return MapDuplicate(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// 値が同じでも updated_at は変わるので 0 は行なし
			return domain.ErrNotFound
		}

		for _, l := range logs {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_edit_logs (actor_id, target_id, field, old_value, new_value, created_at)
			VALUES (?, ?, ?, ?, ?, UTC_TIMESTAMP(3))`,
				l.ActorID, l.TargetID, l.Field, l.OldValue, l.NewValue); err != nil {
				return fmt.Errorf("insert edit log: %w", err)
			}
		}
		return nil
	})
}

// ListEditLogs: 新しい順
func (s *MySQLStore) ListEditLogs(ctx context.Context, targetID *int64, limit int) ([]domain.UserEditLogEntry, error) {
	q := `SELECT id, actor_id, target_id, field, old_value, new_value, created_at FROM user_edit_logs`
	var args []any
	if targetID != nil {
		q += " WHERE target_id = ?"
		args = append(args, *targetID)
	}
	q += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.UserEditLogEntry{}
	for rows.Next() {
		var l domain.UserEditLogEntry
		if err := rows.Scan(&l.ID, &l.ActorID, &l.TargetID, &l.Field, &l.OldValue, &l.NewValue, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
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
