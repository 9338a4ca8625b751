// Package notify はキオスクへの変更通知（WebSocket 配信と Redis 中継）
package notify

import (
	"context"
	"time"
)

const (
	TypeRegistrationUsed    = "registration.used"
	TypeAnnouncementChanged = "announcement.changed"
	TypeAttendanceToggled   = "attendance.toggled"
)

// Event: WebSocket にそのまま JSON で流す
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}

func NewEvent(typ string, data map[string]any) Event {
	return Event{Type: typ, Data: data, At: time.Now().UTC()}
}

// Publisher: サービス層から見た通知口。配信失敗は業務処理を失敗させない
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop: 通知不要な構成・テスト用
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
