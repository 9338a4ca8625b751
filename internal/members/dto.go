package members

import (
	"time"

	"PRESENCE-backend/internal/domain"
)

const (
	DefaultLogLimit = 100
	MaxLogLimit     = 500
)

type MemberResponse struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	CardID      string    `json:"card_id"`
	Generation  int       `json:"generation"`
	Grade       string    `json:"grade,omitempty"`
	TeamID      *int64    `json:"team_id"`
	Role        string    `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateMemberRequest: 指定したフィールドのみ変更。clear_team=true で未所属に
type UpdateMemberRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	CardID      *string `json:"card_id,omitempty"`
	Generation  *int    `json:"generation,omitempty"`
	TeamID      *int64  `json:"team_id,omitempty"`
	ClearTeam   bool    `json:"clear_team,omitempty"`
	Role        *string `json:"role,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type EditLogResponse struct {
	ID        int64     `json:"id"`
	ActorID   int64     `json:"actor_id"`
	TargetID  int64     `json:"target_id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}

func editLogToDTO(l domain.UserEditLogEntry) EditLogResponse {
	return EditLogResponse{
		ID:        l.ID,
		ActorID:   l.ActorID,
		TargetID:  l.TargetID,
		Field:     l.Field,
		OldValue:  l.OldValue,
		NewValue:  l.NewValue,
		CreatedAt: l.CreatedAt,
	}
}
