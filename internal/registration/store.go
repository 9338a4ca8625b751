package registration

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/members"
	"PRESENCE-backend/internal/platform/db"
)

const tempColumns = `id, card_id, token, created_at, expires_at, accessed_at, used, used_at`

type MySQLStore struct{ db *sql.DB }

func NewStore(conn *sql.DB) *MySQLStore { return &MySQLStore{db: conn} }

var _ Store = (*MySQLStore)(nil)

func (s *MySQLStore) MemberByCard(ctx context.Context, cardID string) (*domain.Member, error) {
	return members.FindMember(ctx, s.db, "card_id", cardID)
}

func (s *MySQLStore) MemberByExternalID(ctx context.Context, externalID string) (*domain.Member, error) {
	return members.FindMember(ctx, s.db, "external_id", externalID)
}

func (s *MySQLStore) DisplayNameTaken(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE display_name = ? LIMIT 1`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
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

// UpsertTempRegistration: card_id（UNIQUE）で INSERT または差し替え。
// 差し替え時は accessed_at / used をリセットする
func (s *MySQLStore) UpsertTempRegistration(ctx context.Context, tr *domain.TempRegistration) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO temp_registrations (card_id, token, created_at, expires_at, accessed_at, used, used_at)
	VALUES (?, ?, ?, ?, NULL, 0, NULL)
	ON DUPLICATE KEY UPDATE
	token       = VALUES(token),
	created_at  = VALUES(created_at),
	expires_at  = VALUES(expires_at),
	accessed_at = NULL,
	used        = 0,
	used_at     = NULL`,
		tr.CardID, tr.Token, tr.CreatedAt.UTC(), tr.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	// ON DUPLICATE の LastInsertId は当てにならないので引き直す
	return s.db.QueryRowContext(ctx, `SELECT id FROM temp_registrations WHERE card_id = ?`, tr.CardID).Scan(&tr.ID)
}

func scanTemp(r interface{ Scan(...any) error }) (*domain.TempRegistration, error) {
	var (
		tr       domain.TempRegistration
		accessed sql.NullTime
		usedAt   sql.NullTime
	)
	if err := r.Scan(&tr.ID, &tr.CardID, &tr.Token, &tr.CreatedAt, &tr.ExpiresAt, &accessed, &tr.Used, &usedAt); err != nil {
		return nil, err
	}
	if accessed.Valid {
		t := accessed.Time
		tr.AccessedAt = &t
	}
	if usedAt.Valid {
		t := usedAt.Time
		tr.UsedAt = &t
	}
	return &tr, nil
}

func (s *MySQLStore) TempRegistrationByToken(ctx context.Context, token string) (*domain.TempRegistration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tempColumns+` FROM temp_registrations WHERE token = ?`, token)
	tr, err := scanTemp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return tr, err
}

// MarkTempAccessed: 初回のみ刻む
func (s *MySQLStore) MarkTempAccessed(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE temp_registrations SET accessed_at = ? WHERE id = ? AND accessed_at IS NULL`, at.UTC(), id)
	return err
}

// CompleteRegistration: used の CAS（0→1）と users への INSERT を同一 tx で。
// CAS はトークンも条件に含める。再発行で差し替わっていれば domain.ErrTokenReplaced、
// 使用済みなら domain.ErrAlreadyUsed
func (s *MySQLStore) CompleteRegistration(ctx context.Context, tempID int64, token string, usedAt time.Time, m *domain.Member) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE temp_registrations SET used = 1, used_at = ? WHERE id = ? AND token = ? AND used = 0`,
			usedAt.UTC(), tempID, token)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var same int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM temp_registrations WHERE id = ? AND token = ?`, tempID, token).Scan(&same); err != nil {
				return err
			}
			if same == 0 {
				return domain.ErrTokenReplaced
			}
			return domain.ErrAlreadyUsed
		}

		var team any
		if m.TeamID != nil {
			team = *m.TeamID
		}
		res, err = tx.ExecContext(ctx, `
		INSERT INTO users (external_id, display_name, card_id, generation, team_id, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			m.ExternalID, m.DisplayName, m.CardID, m.Generation, team, string(m.Role), usedAt.UTC(), usedAt.UTC())
		if err != nil {
			if db.MissingReference(err) {
				return domain.ErrNotFound
			}
			return members.MapDuplicate(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		m.ID = id
		m.CreatedAt = usedAt
		m.UpdatedAt = usedAt
		return nil
	})
}
