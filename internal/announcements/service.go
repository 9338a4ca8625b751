package announcements

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/notify"
	"PRESENCE-backend/internal/platform/apperr"
)

type Store interface {
	ListAnnouncements(ctx context.Context, includeInactive bool) ([]domain.Announcement, error)
	AnnouncementByID(ctx context.Context, id int64) (*domain.Announcement, error)
	CreateAnnouncement(ctx context.Context, a *domain.Announcement) error
	UpdateAnnouncement(ctx context.Context, a *domain.Announcement) error
	DeactivateAnnouncement(ctx context.Context, id int64, at time.Time) error
	// SetCurrentAnnouncement: 全件の is_current を外してから id を立てる（同一 tx）。id=nil は外すだけ
	SetCurrentAnnouncement(ctx context.Context, id *int64, at time.Time) error
	CurrentAnnouncement(ctx context.Context) (*domain.Announcement, error)
}

type Service struct {
	store Store
	pub   notify.Publisher
	clock domain.Clock
	log   *zap.Logger
}

func NewService(store Store, pub notify.Publisher, clock domain.Clock, log *zap.Logger) *Service {
	if pub == nil {
		pub = notify.Nop{}
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Service{store: store, pub: pub, clock: clock, log: log}
}

func validTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", apperr.Invalid("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", apperr.Invalid("title is too long")
	}
	return title, nil
}

func validContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if utf8.RuneCountInString(content) > maxContentLen {
		return "", apperr.Invalid("content is too long")
	}
	return content, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.NotFound("announcement not found")
	}
	return apperr.StoreUnavailable(err)
}

// GET /admin/announcements?all=1
func (s *Service) List(ctx context.Context, includeInactive bool) ([]Response, error) {
	rows, err := s.store.ListAnnouncements(ctx, includeInactive)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out := make([]Response, 0, len(rows))
	for i := range rows {
		out = append(out, toDTO(&rows[i]))
	}
	return out, nil
}

// POST /admin/announcements
func (s *Service) Create(ctx context.Context, authorID int64, req CreateRequest) (Response, error) {
	title, err := validTitle(req.Title)
	if err != nil {
		return Response{}, err
	}
	content, err := validContent(req.Content)
	if err != nil {
		return Response{}, err
	}

	now := s.clock.Now().UTC()
	a := domain.Announcement{
		Title:     title,
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAnnouncement(ctx, &a); err != nil {
		return Response{}, apperr.StoreUnavailable(err)
	}
	s.log.Info("announcement created", zap.Int64("id", a.ID), zap.Int64("author_id", authorID))

	if req.SetCurrent {
		return s.SetCurrent(ctx, a.ID)
	}
	return toDTO(&a), nil
}

// PATCH /admin/announcements/:id
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Response, error) {
	cur, err := s.store.AnnouncementByID(ctx, id)
	if err != nil {
		return Response{}, notFoundOr(err)
	}
	if !cur.IsActive {
		return Response{}, apperr.NotFound("announcement not found")
	}
	if req.Title != nil {
		if cur.Title, err = validTitle(*req.Title); err != nil {
			return Response{}, err
		}
	}
	if req.Content != nil {
		if cur.Content, err = validContent(*req.Content); err != nil {
			return Response{}, err
		}
	}
	cur.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateAnnouncement(ctx, cur); err != nil {
		return Response{}, notFoundOr(err)
	}
	if cur.IsCurrent {
		s.changed(ctx, &cur.ID)
	}
	return toDTO(cur), nil
}

// DELETE /admin/announcements/:id（論理削除。表示中なら表示も外れる）
func (s *Service) Delete(ctx context.Context, id int64) error {
	cur, err := s.store.AnnouncementByID(ctx, id)
	if err != nil {
		return notFoundOr(err)
	}
	if err := s.store.DeactivateAnnouncement(ctx, id, s.clock.Now().UTC()); err != nil {
		return notFoundOr(err)
	}
	s.log.Info("announcement deleted", zap.Int64("id", id))
	if cur.IsCurrent {
		s.changed(ctx, nil)
	}
	return nil
}

// PUT /admin/announcements/:id/current
func (s *Service) SetCurrent(ctx context.Context, id int64) (Response, error) {
	if err := s.store.SetCurrentAnnouncement(ctx, &id, s.clock.Now().UTC()); err != nil {
		return Response{}, notFoundOr(err)
	}
	a, err := s.store.AnnouncementByID(ctx, id)
	if err != nil {
		return Response{}, notFoundOr(err)
	}
	s.log.Info("announcement set current", zap.Int64("id", id))
	s.changed(ctx, &id)
	return toDTO(a), nil
}

// DELETE /admin/announcement-current
func (s *Service) ClearCurrent(ctx context.Context) error {
	if err := s.store.SetCurrentAnnouncement(ctx, nil, s.clock.Now().UTC()); err != nil {
		return apperr.StoreUnavailable(err)
	}
	s.changed(ctx, nil)
	return nil
}

// Current: GET /announcements/current, GET /kiosk/announcement
func (s *Service) Current(ctx context.Context) (CurrentResponse, error) {
	a, err := s.store.CurrentAnnouncement(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return CurrentResponse{OK: true}, nil
	}
	if err != nil {
		return CurrentResponse{}, apperr.StoreUnavailable(err)
	}
	dto := toDTO(a)
	return CurrentResponse{OK: true, Announcement: &dto}, nil
}

func (s *Service) changed(ctx context.Context, id *int64) {
	data := map[string]any{"id": nil}
	if id != nil {
		data["id"] = *id
	}
	if err := s.pub.Publish(ctx, notify.NewEvent(notify.TypeAnnouncementChanged, data)); err != nil {
		s.log.Warn("notify publish failed", zap.String("type", notify.TypeAnnouncementChanged), zap.Error(err))
	}
}
