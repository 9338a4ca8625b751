// Package kiosk はキオスク端末側の処理（画面状態・API 呼び出し・変更通知の購読）
package kiosk

import (
	"strings"
	"time"

	"PRESENCE-backend/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateInput
	StateProcessing
	StateSuccess
	StateError
	StateRegister
	StateQR
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInput:
		return "input"
	case StateProcessing:
		return "processing"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	case StateRegister:
		return "register"
	case StateQR:
		return "qr"
	default:
		return "unknown"
	}
}

// ResetDelay: success / error 表示から idle に戻るまで
const ResetDelay = 5 * time.Second

const (
	registerRetryHint = "もう一度「/」キーを押して登録をやり直してください"
	registerPrompt    = "登録するカードをかざしてください"
	qrExpiredNotice   = "登録の有効期限が切れました"
	registeredNotice  = "登録が完了しました"
)

type RequestKind int

const (
	RequestTap RequestKind = iota + 1
	RequestBegin
)

// Request: Submit が返す「この card_id で API を呼んでほしい」という依頼。
// 結果は同じ Seq を添えて Machine に戻す
type Request struct {
	Kind   RequestKind
	Seq    uint64
	CardID string
}

type QRInfo struct {
	Token     string
	URL       string
	ExpiresAt time.Time
}

// Machine: キオスク画面の状態遷移。時刻は呼び出し側が渡す。
// goroutine セーフではない（bubbletea の Update からのみ触る）
type Machine struct {
	state   State
	buf     strings.Builder
	seq     uint64
	pending RequestKind
	message string
	notice  string
	resetAt time.Time
	qr      QRInfo
}

func NewMachine() *Machine { return &Machine{} }

func (m *Machine) State() State    { return m.state }
func (m *Machine) Buffer() string  { return m.buf.String() }
func (m *Machine) Message() string { return m.message }

// Notice: idle 画面に一度だけ出す補足（期限切れ・登録完了など）
func (m *Machine) Notice() string { return m.notice }

func (m *Machine) QR() (QRInfo, bool) {
	if m.state != StateQR {
		return QRInfo{}, false
	}
	return m.qr, true
}

// Remaining: QR の残り時間。QR 以外は 0
func (m *Machine) Remaining(now time.Time) time.Duration {
	if m.state != StateQR {
		return 0
	}
	if d := m.qr.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (m *Machine) toIdle(notice string) {
	m.state = StateIdle
	m.buf.Reset()
	m.message = ""
	m.notice = notice
	m.pending = 0
	m.resetAt = time.Time{}
	m.qr = QRInfo{}
}

// Type: カードリーダー/キーボードからの文字入力
func (m *Machine) Type(s string) bool {
	if s == "" {
		return false
	}
	switch m.state {
	case StateIdle, StateError:
		m.state = StateInput
		m.buf.Reset()
		m.message = ""
		m.notice = ""
	case StateInput, StateRegister:
	default:
		// processing 中は多重送信になるので捨てる。success / qr は表示中
		return false
	}
	m.buf.WriteString(s)
	return true
}

func (m *Machine) Backspace() bool {
	if m.state != StateInput && m.state != StateRegister {
		return false
	}
	r := []rune(m.buf.String())
	if len(r) == 0 {
		return false
	}
	m.buf.Reset()
	m.buf.WriteString(string(r[:len(r)-1]))
	return true
}

// Register: "/" キー。次に読んだカードを登録対象にする
func (m *Machine) Register() bool {
	switch m.state {
	case StateIdle, StateInput, StateError:
		m.state = StateRegister
		m.buf.Reset()
		m.message = registerPrompt
		m.notice = ""
		m.resetAt = time.Time{}
		return true
	}
	return false
}

// Cancel: Esc。処理中と成功表示中はロック
func (m *Machine) Cancel() bool {
	switch m.state {
	case StateProcessing, StateSuccess:
		return false
	case StateIdle:
		if m.notice == "" {
			return false
		}
	}
	m.toIdle("")
	return true
}

// Submit: Enter。空入力は無視
func (m *Machine) Submit() (Request, bool) {
	var kind RequestKind
	switch m.state {
	case StateInput:
		kind = RequestTap
	case StateRegister:
		kind = RequestBegin
	default:
		return Request{}, false
	}
	card := domain.NormalizeCardID(m.buf.String())
	if card == "" {
		return Request{}, false
	}
	m.seq++
	m.state = StateProcessing
	m.pending = kind
	m.buf.Reset()
	m.message = "処理中..."
	return Request{Kind: kind, Seq: m.seq, CardID: card}, true
}

// current: 結果が今のセッションのものか。Esc などで抜けた後の遅延応答は捨てる
func (m *Machine) current(seq uint64) bool {
	return m.state == StateProcessing && seq == m.seq
}

// Succeeded: 打刻成功
func (m *Machine) Succeeded(seq uint64, message string, now time.Time) bool {
	if !m.current(seq) {
		return false
	}
	m.state = StateSuccess
	m.message = message
	m.pending = 0
	m.resetAt = now.Add(ResetDelay)
	return true
}

// Failed: 打刻・登録開始の失敗。登録側の失敗にはやり直し案内を付ける
func (m *Machine) Failed(seq uint64, message string, now time.Time) bool {
	if !m.current(seq) {
		return false
	}
	if m.pending == RequestBegin && !strings.Contains(message, "「/」") {
		message += "\n" + registerRetryHint
	}
	m.state = StateError
	m.message = message
	m.pending = 0
	m.resetAt = now.Add(ResetDelay)
	return true
}

// Issued: 登録トークン発行成功 → QR 表示
func (m *Machine) Issued(seq uint64, qr QRInfo) bool {
	if !m.current(seq) || m.pending != RequestBegin {
		return false
	}
	m.state = StateQR
	m.qr = qr
	m.message = ""
	m.pending = 0
	m.resetAt = time.Time{}
	return true
}

// RegistrationUsed: 表示中の QR が使われた（通知 or ポーリング）
func (m *Machine) RegistrationUsed(token string) bool {
	if m.state != StateQR || m.qr.Token != token {
		return false
	}
	m.toIdle(registeredNotice)
	return true
}

// Tick: 自動リセットと QR の期限切れ
func (m *Machine) Tick(now time.Time) bool {
	switch m.state {
	case StateSuccess, StateError:
		if !now.Before(m.resetAt) {
			m.toIdle("")
			return true
		}
	case StateQR:
		if !now.Before(m.qr.ExpiresAt) {
			m.toIdle(qrExpiredNotice)
			return true
		}
	}
	return false
}
