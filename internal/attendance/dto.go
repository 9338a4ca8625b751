package attendance

import (
	"time"

	"PRESENCE-backend/internal/domain"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 200
)

type TapRequest struct {
	CardID string `json:"card_id" binding:"required"`
}

type MemberBrief struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

type EventResponse struct {
	ID         string    `json:"id"` // event_ulid
	MemberID   int64     `json:"member_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	AttendedOn string    `json:"attended_on"`
}

// TapResponse: キオスク向け。duplicate=true は連打として記録しなかった
type TapResponse struct {
	OK        bool          `json:"ok"`
	Message   string        `json:"message"`
	Type      string        `json:"type"`
	Duplicate bool          `json:"duplicate"`
	Member    MemberBrief   `json:"member"`
	Event     EventResponse `json:"event"`
}

type ForceRequest struct {
	MemberID int64  `json:"member_id" binding:"required"`
	Type     string `json:"type" binding:"required"`
}

type ForceLogoutResponse struct {
	OK       bool   `json:"ok"`
	Affected int    `json:"affected"`
	Message  string `json:"message"`
}

type StatusResponse struct {
	MemberID int64      `json:"member_id"`
	Status   string     `json:"status"`
	Since    *time.Time `json:"since,omitempty"`
}

type PresentResponse struct {
	MemberID    int64     `json:"member_id"`
	DisplayName string    `json:"display_name"`
	TeamID      *int64    `json:"team_id"`
	Generation  int       `json:"generation"`
	Since       time.Time `json:"since"`
}

type LogoutLogResponse struct {
	ID            int64     `json:"id"`
	ActorID       *int64    `json:"actor_id"` // null = 定時ジョブ
	AffectedCount int       `json:"affected_count"`
	ExecutedAt    time.Time `json:"executed_at"`
}

func eventToDTO(ev domain.AttendanceEvent) EventResponse {
	return EventResponse{
		ID:         ev.ULID,
		MemberID:   ev.MemberID,
		Type:       string(ev.Type),
		OccurredAt: ev.OccurredAt,
		AttendedOn: ev.AttendedOn,
	}
}
