// Package memstore はプロセス内メモリに全テーブルを持つストア。
// demo モードとテストで MySQL の代わりに使う
package memstore

import (
	"sync"
	"time"

	"PRESENCE-backend/internal/domain"
)

type Store struct {
	// 打刻はこの mutex 一本で直列化する（メンバー単位ロックより粗いが正しい）
	mu sync.Mutex

	seq map[string]int64

	members       map[int64]*domain.Member
	teams         map[int64]*domain.Team
	events        []domain.AttendanceEvent
	temps         map[int64]*domain.TempRegistration
	announcements map[int64]*domain.Announcement
	editLogs      []domain.UserEditLogEntry
	logoutLogs    []domain.DailyLogoutLogEntry
}

func New() *Store {
	return &Store{
		seq:           make(map[string]int64),
		members:       make(map[int64]*domain.Member),
		teams:         make(map[int64]*domain.Team),
		temps:         make(map[int64]*domain.TempRegistration),
		announcements: make(map[int64]*domain.Announcement),
	}
}

func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func now() time.Time { return time.Now().UTC() }

// ---------- seeding (demo / tests) ----------

// SeedTeam: チームを直接追加して返す
func (s *Store) SeedTeam(name string) domain.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &domain.Team{ID: s.nextID("teams"), Name: name}
	s.teams[t.ID] = t
	return *t
}

// SeedMember: ID / CardID 正規化 / タイムスタンプを埋めて追加
func (s *Store) SeedMember(m domain.Member) domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID("users")
	m.CardID = domain.NormalizeCardID(m.CardID)
	if m.Role == "" {
		m.Role = domain.RoleMember
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	m.UpdatedAt = m.CreatedAt
	cp := m
	s.members[m.ID] = &cp
	return m
}

// SeedEvent: 打刻ログを直接追記（ロック・トグル判定なし）
func (s *Store) SeedEvent(ev domain.AttendanceEvent) domain.AttendanceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEventLocked(&ev)
	return ev
}

// SeedTempRegistration: 期限切れなど任意の状態の仮登録を直接置く
func (s *Store) SeedTempRegistration(tr domain.TempRegistration) domain.TempRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr.ID = s.nextID("temp_registrations")
	tr.CardID = domain.NormalizeCardID(tr.CardID)
	cp := tr
	s.temps[tr.ID] = &cp
	return tr
}

// EventCount: テスト用
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func copyMember(m *domain.Member) *domain.Member {
	cp := *m
	if m.TeamID != nil {
		id := *m.TeamID
		cp.TeamID = &id
	}
	return &cp
}
