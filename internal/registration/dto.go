package registration

import (
	"time"

	"PRESENCE-backend/internal/domain"
)

type BeginRequest struct {
	CardID string `json:"card_id" binding:"required"`
}

type BeginResponse struct {
	OK        bool      `json:"ok"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FetchResponse: 登録ページの表示用
type FetchResponse struct {
	CardID     string     `json:"card_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AccessedAt *time.Time `json:"accessed_at"`
	Used       bool       `json:"used"`
	Expired    bool       `json:"expired"`
}

type StatusResponse struct {
	Used      bool      `json:"used"`
	Expired   bool      `json:"expired"`
	Accessed  bool      `json:"accessed"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CompleteRequest struct {
	DisplayName string `json:"display_name"`
	Generation  int    `json:"generation"`
	TeamID      *int64 `json:"team_id,omitempty"`
}

type MemberResponse struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Generation  int    `json:"generation"`
	TeamID      *int64 `json:"team_id"`
}

type CompleteResponse struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Member  MemberResponse `json:"member"`
}

func toFetchDTO(tr *domain.TempRegistration, now time.Time) FetchResponse {
	return FetchResponse{
		CardID:     tr.CardID,
		ExpiresAt:  tr.ExpiresAt,
		AccessedAt: tr.AccessedAt,
		Used:       tr.Used,
		Expired:    tr.Expired(now),
	}
}
