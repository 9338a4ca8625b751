package domain

import (
	"context"
	"time"
)

// Ledger: 出退勤ログへのアクセス。
// 「最新イベント」の問い合わせはここ一箇所に集約し、ロック下でのみ呼ばれる
type Ledger interface {
	// LatestEventFor: occurred_at 最大のイベント。なければ nil, nil
	LatestEventFor(ctx context.Context, memberID int64) (*AttendanceEvent, error)
	// AppendEvent: ID / CreatedAt を採番して追記
	AppendEvent(ctx context.Context, ev *AttendanceEvent) error
}

// BulkLedger: 一斉退出用。全メンバーの打刻と排他した状態で渡される
type BulkLedger interface {
	Ledger
	// MembersCurrentlyIn: 最新イベントが in のメンバーID（ID昇順）
	MembersCurrentlyIn(ctx context.Context) ([]int64, error)
	InsertDailyLogoutLog(ctx context.Context, entry *DailyLogoutLogEntry) error
}

// PresentMember: 現在 in のメンバーと in した時刻
type PresentMember struct {
	Member Member
	Since  time.Time
}
