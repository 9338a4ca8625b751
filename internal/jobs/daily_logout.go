// Package jobs は常駐プロセスで回す定時処理
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
)

type ForceLogouter interface {
	ForceLogoutAll(ctx context.Context, actorID *int64) (int, error)
}

// DailyLogoutJob: 毎日 HH:MM（ローカル時刻）に在室者を一斉退出させる
type DailyLogoutJob struct {
	svc    ForceLogouter
	hour   int
	minute int
	loc    *time.Location
	clock  domain.Clock
	log    *zap.Logger

	// after: テストで差し替える
	after func(d time.Duration) <-chan time.Time
}

// ParseHHMM: "21:30" → 21, 30
func ParseHHMM(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func NewDailyLogoutJob(svc ForceLogouter, at string, loc *time.Location, clock domain.Clock, log *zap.Logger) (*DailyLogoutJob, error) {
	h, m, err := ParseHHMM(at)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &DailyLogoutJob{
		svc:    svc,
		hour:   h,
		minute: m,
		loc:    loc,
		clock:  clock,
		log:    log,
		after:  time.After,
	}, nil
}

// NextRun: now より後で最初の hour:minute。DST でずれても Date が正規化する
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Start: ctx が切れるまでブロックする。呼び出し側で go する
func (j *DailyLogoutJob) Start(ctx context.Context) {
	j.log.Info("daily logout job started", zap.String("at", fmt.Sprintf("%02d:%02d", j.hour, j.minute)), zap.String("tz", j.loc.String()))
	for {
		next := NextRun(j.clock.Now(), j.hour, j.minute, j.loc)
		wait := next.Sub(j.clock.Now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			j.log.Info("daily logout job stopped")
			return
		case <-j.after(wait):
			j.RunOnce(ctx)
		}
	}
}

// RunOnce: 失敗してもループは止めない。翌日また走る
func (j *DailyLogoutJob) RunOnce(ctx context.Context) {
	start := time.Now()
	n, err := j.svc.ForceLogoutAll(ctx, nil)
	if err != nil {
		j.log.Error("daily logout failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	j.log.Info("daily logout completed", zap.Int("affected", n), zap.Duration("duration", time.Since(start)))
}
