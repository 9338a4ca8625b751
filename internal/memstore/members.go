package memstore

import (
	"context"
	"sort"

	"PRESENCE-backend/internal/domain"
)

func (s *Store) MemberByID(_ context.Context, id int64) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyMember(m), nil
}

func (s *Store) MemberByCard(_ context.Context, cardID string) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.CardID == cardID {
			return copyMember(m), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) MemberByExternalID(_ context.Context, externalID string) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.ExternalID == externalID {
			return copyMember(m), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) DisplayNameTaken(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.DisplayName == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListMembers(_ context.Context, f domain.MemberFilter) ([]domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Member, 0, len(s.members))
	for _, m := range s.members {
		if f.ActiveOnly && !m.IsActive {
			continue
		}
		if f.TeamID != nil && (m.TeamID == nil || *m.TeamID != *f.TeamID) {
			continue
		}
		out = append(out, *copyMember(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// uniqueLocked: 表示名・カード・外部IDの重複検査（self は除外）
func (s *Store) uniqueLocked(m *domain.Member, self int64) error {
	for id, o := range s.members {
		if id == self {
			continue
		}
		switch {
		case m.ExternalID != "" && o.ExternalID == m.ExternalID:
			return domain.ErrDuplicateExternalID
		case o.DisplayName == m.DisplayName:
			return domain.ErrDuplicateDisplayName
		case m.CardID != "" && o.CardID == m.CardID:
			return domain.ErrDuplicateCard
		}
	}
	return nil
}

// UpdateMember: members と user_edit_logs を同時に書く
func (s *Store) UpdateMember(_ context.Context, m *domain.Member, logs []domain.UserEditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.members[m.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.uniqueLocked(m, m.ID); err != nil {
		return err
	}
	if m.TeamID != nil {
		if _, ok := s.teams[*m.TeamID]; !ok {
			return domain.ErrNotFound
		}
	}
	t := now()
	next := copyMember(m)
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = t
	s.members[m.ID] = next
	m.UpdatedAt = t

	for _, l := range logs {
		l.ID = s.nextID("user_edit_logs")
		l.CreatedAt = t
		s.editLogs = append(s.editLogs, l)
	}
	return nil
}

// ListEditLogs: 新しい順
func (s *Store) ListEditLogs(_ context.Context, targetID *int64, limit int) ([]domain.UserEditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.UserEditLogEntry{}
	for i := len(s.editLogs) - 1; i >= 0; i-- {
		l := s.editLogs[i]
		if targetID != nil && l.TargetID != *targetID {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---------- teams ----------

func (s *Store) ListTeams(_ context.Context) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) TeamByID(_ context.Context, id int64) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) teamNameTakenLocked(name string, self int64) bool {
	for id, t := range s.teams {
		if id != self && t.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) CreateTeam(_ context.Context, t *domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teamNameTakenLocked(t.Name, 0) {
		return domain.ErrDuplicateTeamName
	}
	t.ID = s.nextID("teams")
	cp := *t
	s.teams[t.ID] = &cp
	return nil
}

func (s *Store) RenameTeam(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.teamNameTakenLocked(name, id) {
		return domain.ErrDuplicateTeamName
	}
	t.Name = name
	return nil
}

// DeleteTeam: 参照しているメンバーがいれば ErrInUse（FK と同じ挙動）
func (s *Store) DeleteTeam(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return domain.ErrNotFound
	}
	for _, m := range s.members {
		if m.TeamID != nil && *m.TeamID == id {
			return domain.ErrInUse
		}
	}
	delete(s.teams, id)
	return nil
}

// CountTeamMembers: 有効なメンバーのみ
func (s *Store) CountTeamMembers(_ context.Context, teamID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.members {
		if m.IsActive && m.TeamID != nil && *m.TeamID == teamID {
			n++
		}
	}
	return n, nil
}
