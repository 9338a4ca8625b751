package announcements

import (
	"time"

	"PRESENCE-backend/internal/domain"
)

const (
	maxTitleLen   = 128
	maxContentLen = 4000
)

type CreateRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
	// SetCurrent: 作成と同時にキオスク表示中にする
	SetCurrent bool `json:"set_current"`
}

type UpdateRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type Response struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  int64     `json:"author_id"`
	IsActive  bool      `json:"is_active"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentResponse: キオスク向け。表示中がなければ announcement は null
type CurrentResponse struct {
	OK           bool      `json:"ok"`
	Announcement *Response `json:"announcement"`
}

func toDTO(a *domain.Announcement) Response {
	return Response{
		ID:        a.ID,
		Title:     a.Title,
		Content:   a.Content,
		AuthorID:  a.AuthorID,
		IsActive:  a.IsActive,
		IsCurrent: a.IsCurrent,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
