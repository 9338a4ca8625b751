package memstore

import (
	"context"
	"sort"
	"time"

	"PRESENCE-backend/internal/domain"
)

// ListAnnouncements: 新しい順
func (s *Store) ListAnnouncements(_ context.Context, includeInactive bool) ([]domain.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Announcement{}
	for _, a := range s.announcements {
		if !includeInactive && !a.IsActive {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) AnnouncementByID(_ context.Context, id int64) (*domain.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.announcements[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) CreateAnnouncement(_ context.Context, a *domain.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextID("announcements")
	a.IsActive = true
	a.IsCurrent = false
	cp := *a
	s.announcements[a.ID] = &cp
	return nil
}

// UpdateAnnouncement: title / content のみ
func (s *Store) UpdateAnnouncement(_ context.Context, a *domain.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.announcements[a.ID]
	if !ok || !cur.IsActive {
		return domain.ErrNotFound
	}
	cur.Title = a.Title
	cur.Content = a.Content
	cur.UpdatedAt = a.UpdatedAt
	*a = *cur
	return nil
}

// DeactivateAnnouncement: 論理削除。current なら外す
func (s *Store) DeactivateAnnouncement(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.announcements[id]
	if !ok || !a.IsActive {
		return domain.ErrNotFound
	}
	a.IsActive = false
	a.IsCurrent = false
	a.UpdatedAt = at
	return nil
}

// SetCurrentAnnouncement: 全件クリアしてから1件立てる。id=nil はクリアのみ
func (s *Store) SetCurrentAnnouncement(_ context.Context, id *int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != nil {
		a, ok := s.announcements[*id]
		if !ok || !a.IsActive {
			return domain.ErrNotFound
		}
	}
	for _, a := range s.announcements {
		if a.IsCurrent {
			a.IsCurrent = false
			a.UpdatedAt = at
		}
	}
	if id != nil {
		a := s.announcements[*id]
		a.IsCurrent = true
		a.UpdatedAt = at
	}
	return nil
}

func (s *Store) CurrentAnnouncement(_ context.Context) (*domain.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur *domain.Announcement
	for _, a := range s.announcements {
		if a.IsCurrent && a.IsActive && (cur == nil || a.UpdatedAt.After(cur.UpdatedAt)) {
			cur = a
		}
	}
	if cur == nil {
		return nil, domain.ErrNotFound
	}
	cp := *cur
	return &cp, nil
}
