package domain

import "time"

const DateLayout = "2006-01-02"

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool { return r == RoleMember || r == RoleAdmin }

type EventType string

const (
	EventIn  EventType = "in"
	EventOut EventType = "out"
)

func (t EventType) Valid() bool { return t == EventIn || t == EventOut }

// Opposite: in → out, out → in
func (t EventType) Opposite() EventType {
	if t == EventIn {
		return EventOut
	}
	return EventIn
}

// NextAfter: 直前イベントから次の種別を決める（イベントなしは in）
func NextAfter(last *AttendanceEvent) EventType {
	if last == nil {
		return EventIn
	}
	return last.Type.Opposite()
}

type Member struct {
	ID          int64
	ExternalID  string
	DisplayName string
	CardID      string
	Generation  int
	TeamID      *int64
	Role        Role
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Team struct {
	ID   int64
	Name string
}

// AttendanceEvent: 追記のみ。更新・削除はしない
type AttendanceEvent struct {
	ID         int64
	ULID       string
	MemberID   int64
	Type       EventType
	OccurredAt time.Time
	AttendedOn string // ローカル日付 YYYY-MM-DD
	CreatedAt  time.Time
}

// InEvent: 集計用（in イベント + メンバー属性）
type InEvent struct {
	MemberID   int64
	TeamID     int64 // 未所属は 0
	Generation int
	AttendedOn string
	OccurredAt time.Time
}

type TempRegistration struct {
	ID         int64
	CardID     string
	Token      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AccessedAt *time.Time
	Used       bool
	UsedAt     *time.Time
}

// Expired: 有効期限は now > expires_at
func (t *TempRegistration) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type Announcement struct {
	ID        int64
	Title     string
	Content   string
	AuthorID  int64
	IsActive  bool
	IsCurrent bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserEditLogEntry struct {
	ID        int64
	ActorID   int64
	TargetID  int64
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

type DailyLogoutLogEntry struct {
	ID            int64
	ActorID       *int64 // nil = 定時ジョブ
	AffectedCount int
	ExecutedAt    time.Time
}

// MemberFilter: 一覧の絞り込み
type MemberFilter struct {
	TeamID     *int64
	ActiveOnly bool
}
