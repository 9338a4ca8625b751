package announcements

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/db"
)

const columns = `id, title, content, author_id, is_active, is_current, created_at, updated_at`

type MySQLStore struct{ db *sql.DB }

func NewStore(conn *sql.DB) *MySQLStore { return &MySQLStore{db: conn} }

var _ Store = (*MySQLStore)(nil)

func scan(r interface{ Scan(...any) error }) (*domain.Announcement, error) {
	var a domain.Announcement
	if err := r.Scan(&a.ID, &a.Title, &a.Content, &a.AuthorID, &a.IsActive, &a.IsCurrent, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MySQLStore) ListAnnouncements(ctx context.Context, includeInactive bool) ([]domain.Announcement, error) {
	q := `SELECT ` + columns + ` FROM announcements`
	if !includeInactive {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Announcement{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *MySQLStore) AnnouncementByID(ctx context.Context, id int64) (*domain.Announcement, error) {
	a, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM announcements WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (s *MySQLStore) CreateAnnouncement(ctx context.Context, a *domain.Announcement) error {
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO announcements (title, content, author_id, is_active, is_current, created_at, updated_at)
	VALUES (?, ?, ?, 1, 0, ?, ?)`,
		a.Title, a.Content, a.AuthorID, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.IsActive = true
	a.IsCurrent = false
	return nil
}

func (s *MySQLStore) UpdateAnnouncement(ctx context.Context, a *domain.Announcement) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE announcements SET title = ?, content = ?, updated_at = ?
	WHERE id = ? AND is_active = 1`,
		a.Title, a.Content, a.UpdatedAt.UTC(), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeactivateAnnouncement: 論理削除。is_current も同時に落とす
func (s *MySQLStore) DeactivateAnnouncement(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE announcements SET is_active = 0, is_current = 0, updated_at = ?
	WHERE id = ? AND is_active = 1`, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetCurrentAnnouncement: 対象行を FOR UPDATE で確認 → 全解除 → 1件設定。
// 同時実行でも is_current が2行にならないよう同一 tx で行う
func (s *MySQLStore) SetCurrentAnnouncement(ctx context.Context, id *int64, at time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if id != nil {
			var one int
			err := tx.QueryRowContext(ctx,
				`SELECT 1 FROM announcements WHERE id = ? AND is_active = 1 FOR UPDATE`, *id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE announcements SET is_current = 0, updated_at = ? WHERE is_current = 1`, at.UTC()); err != nil {
			return err
		}
		if id == nil {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE announcements SET is_current = 1, updated_at = ? WHERE id = ?`, at.UTC(), *id)
		return err
	})
}

// CurrentAnnouncement: 万一複数あれば最後に更新されたもの
func (s *MySQLStore) CurrentAnnouncement(ctx context.Context) (*domain.Announcement, error) {
	a, err := scan(s.db.QueryRowContext(ctx, `
	SELECT `+columns+` FROM announcements
	WHERE is_current = 1 AND is_active = 1
	ORDER BY updated_at DESC, id DESC
	LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}
