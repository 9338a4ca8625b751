package kiosk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// サーバ側 notify パッケージの種別と揃える
const (
	EventRegistrationUsed    = "registration.used"
	EventAnnouncementChanged = "announcement.changed"
	EventAttendanceToggled   = "attendance.toggled"
)

const (
	handshakeTimeout = 10 * time.Second
	// サーバは 54 秒ごとに ping する。それより長く無音なら切れたとみなす
	readTimeout  = 70 * time.Second
	controlWait  = 5 * time.Second
	eventsWSPath = "/kiosk/events/ws"
)

type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}

// Token: registration.used の data.token
func (e Event) Token() string {
	s, _ := e.Data["token"].(string)
	return s
}

// Subscriber: 変更通知の WebSocket を張り続ける。切れたら指数バックオフで再接続
type Subscriber struct {
	url    string
	header http.Header
	log    *zap.Logger
	dialer websocket.Dialer

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewSubscriber: apiBase は Client と同じ "https://host:8443/api/v2"
func NewSubscriber(apiBase, key string, log *zap.Logger) (*Subscriber, error) {
	base := strings.TrimRight(apiBase, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return nil, fmt.Errorf("unsupported api base %q", apiBase)
	}
	h := http.Header{}
	h.Set(kioskKeyHeader, key)
	return &Subscriber{
		url:             base + eventsWSPath,
		header:          h,
		log:             log,
		dialer:          websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}, nil
}

func (s *Subscriber) URL() string { return s.url }

// Run: ctx が切れるまで戻らない。onState は接続/切断のたびに呼ばれる
func (s *Subscriber) Run(ctx context.Context, onEvent func(Event), onState func(connected bool)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialInterval
	b.MaxInterval = s.MaxInterval

	for {
		connected, err := s.session(ctx, onEvent, onState)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		s.log.Warn("kiosk events disconnected", zap.Error(err), zap.Duration("retry_in", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session: 1 接続ぶん。接続できたかどうかを返す
func (s *Subscriber) session(ctx context.Context, onEvent func(Event), onState func(bool)) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	onState(true)
	defer onState(false)
	s.log.Info("kiosk events connected", zap.String("url", s.url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(controlWait))
			conn.Close()
		case <-done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.log.Warn("kiosk events: bad payload", zap.Error(err))
			continue
		}
		onEvent(ev)
	}
}
