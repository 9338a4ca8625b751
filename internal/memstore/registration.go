package memstore

import (
	"context"
	"time"

	"PRESENCE-backend/internal/domain"
)

// UpsertTempRegistration: card_id 単位で1件。既存があればトークン・期限を差し替え used を戻す
func (s *Store) UpsertTempRegistration(_ context.Context, tr *domain.TempRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.temps {
		if cur.CardID != tr.CardID {
			continue
		}
		tr.ID = id
		tr.Used, tr.UsedAt, tr.AccessedAt = false, nil, nil
		cp := *tr
		s.temps[id] = &cp
		return nil
	}
	tr.ID = s.nextID("temp_registrations")
	cp := *tr
	s.temps[tr.ID] = &cp
	return nil
}

func (s *Store) TempRegistrationByToken(_ context.Context, token string) (*domain.TempRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range s.temps {
		if tr.Token == token {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// MarkTempAccessed: accessed_at が空のときだけ刻む
func (s *Store) MarkTempAccessed(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.temps[id]
	if !ok {
		return domain.ErrNotFound
	}
	if tr.AccessedAt == nil {
		t := at
		tr.AccessedAt = &t
	}
	return nil
}

// CompleteRegistration: used の CAS とメンバー作成を一括で
func (s *Store) CompleteRegistration(_ context.Context, tempID int64, token string, usedAt time.Time, m *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.temps[tempID]
	if !ok || tr.Token != token {
		return domain.ErrTokenReplaced
	}
	if tr.Used {
		return domain.ErrAlreadyUsed
	}
	if err := s.uniqueLocked(m, 0); err != nil {
		return err
	}
	if m.TeamID != nil {
		if _, ok := s.teams[*m.TeamID]; !ok {
			return domain.ErrNotFound
		}
	}

	t := usedAt
	tr.Used = true
	tr.UsedAt = &t

	m.ID = s.nextID("users")
	m.CreatedAt = usedAt
	m.UpdatedAt = usedAt
	s.members[m.ID] = copyMember(m)
	return nil
}
