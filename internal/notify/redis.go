package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker: 複数 API インスタンス構成用。
// Publish は Redis に流すだけで、各インスタンスの Run が自分の Hub に中継する
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, channel string, hub *Hub, log *zap.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, channel: channel, hub: hub, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Run: ctx が終わるまで購読して Hub に流す
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// 購読確立を待つ
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info("notify: redis subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("notify: bad payload on redis channel", zap.Error(err))
				continue
			}
			b.hub.Broadcast(ev)
		}
	}
}
