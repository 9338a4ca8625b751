// Package tui はキオスク端末の画面（bubbletea）
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/kiosk"
)

const (
	tickInterval         = 500 * time.Millisecond
	requestTimeout       = 10 * time.Second
	statusPollInterval   = 3 * time.Second
	announcementInterval = 30 * time.Second
)

// API: *kiosk.Client を満たす。テストで差し替える
type API interface {
	Tap(ctx context.Context, cardID string) (kiosk.TapResult, error)
	BeginRegistration(ctx context.Context, cardID string) (kiosk.Registration, error)
	RegistrationStatus(ctx context.Context, token string) (kiosk.RegistrationStatus, error)
	CurrentAnnouncement(ctx context.Context) (*kiosk.Announcement, error)
}

// Subscription: *kiosk.Subscriber を満たす。nil なら常にポーリング
type Subscription interface {
	Run(ctx context.Context, onEvent func(kiosk.Event), onState func(connected bool)) error
}

type (
	tickMsg         time.Time
	subEventMsg     struct{ ev kiosk.Event }
	subStateMsg     struct{ connected bool }
	announcementMsg struct {
		a   *kiosk.Announcement
		err error
	}
	tapDoneMsg struct {
		seq uint64
		res kiosk.TapResult
		err error
	}
	beginDoneMsg struct {
		seq uint64
		reg kiosk.Registration
		err error
	}
	statusMsg struct {
		token  string
		status kiosk.RegistrationStatus
		err    error
	}
)

type Model struct {
	ctx    context.Context
	api    API
	sub    Subscription
	log    *zap.Logger
	now    func() time.Time
	events chan tea.Msg

	machine      *kiosk.Machine
	connected    bool
	announcement *kiosk.Announcement
	qrText       string

	lastStatusPoll time.Time
	lastAnnPoll    time.Time

	help   help.Model
	styles styles
	width  int
}

func NewModel(ctx context.Context, api API, sub Subscription, renderer *lipgloss.Renderer, log *zap.Logger) *Model {
	if renderer == nil {
		renderer = lipgloss.DefaultRenderer()
	}
	return &Model{
		ctx:     ctx,
		api:     api,
		sub:     sub,
		log:     log,
		now:     time.Now,
		events:  make(chan tea.Msg, 32),
		machine: kiosk.NewMachine(),
		help:    help.New(),
		styles:  newStyles(renderer),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tick(),
		m.fetchAnnouncement(),
		m.startSubscription(),
		m.waitForEvent(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) startSubscription() tea.Cmd {
	if m.sub == nil {
		return nil
	}
	return func() tea.Msg {
		go func() {
			err := m.sub.Run(m.ctx,
				func(ev kiosk.Event) { m.push(subEventMsg{ev: ev}) },
				func(c bool) { m.push(subStateMsg{connected: c}) },
			)
			m.log.Info("kiosk subscription stopped", zap.Error(err))
		}()
		return nil
	}
}

// push: 画面が終了していたら捨てる
func (m *Model) push(msg tea.Msg) {
	select {
	case m.events <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) fetchAnnouncement() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		a, err := m.api.CurrentAnnouncement(ctx)
		return announcementMsg{a: a, err: err}
	}
}

func (m *Model) pollStatus(token string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		st, err := m.api.RegistrationStatus(ctx, token)
		return statusMsg{token: token, status: st, err: err}
	}
}

func (m *Model) run(req kiosk.Request) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		switch req.Kind {
		case kiosk.RequestBegin:
			reg, err := m.api.BeginRegistration(ctx, req.CardID)
			return beginDoneMsg{seq: req.Seq, reg: reg, err: err}
		default:
			res, err := m.api.Tap(ctx, req.CardID)
			return tapDoneMsg{seq: req.Seq, res: res, err: err}
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tickMsg:
		return m, tea.Batch(tick(), m.onTick(time.Time(msg)))

	case tapDoneMsg:
		now := m.now()
		if msg.err != nil {
			m.log.Info("tap failed", zap.Error(msg.err))
			m.machine.Failed(msg.seq, kiosk.UserMessage(msg.err), now)
			return m, nil
		}
		m.log.Info("tap", zap.Int64("member_id", msg.res.Member.ID), zap.String("type", msg.res.Type), zap.Bool("duplicate", msg.res.Duplicate))
		m.machine.Succeeded(msg.seq, msg.res.Message, now)
		return m, nil

	case beginDoneMsg:
		if msg.err != nil {
			m.log.Info("registration begin failed", zap.Error(msg.err))
			m.machine.Failed(msg.seq, kiosk.UserMessage(msg.err), m.now())
			return m, nil
		}
		text, err := renderQR(msg.reg.URL)
		if err != nil {
			m.log.Error("qr render failed", zap.Error(err))
			text = ""
		}
		if m.machine.Issued(msg.seq, kiosk.QRInfo{Token: msg.reg.Token, URL: msg.reg.URL, ExpiresAt: msg.reg.ExpiresAt}) {
			m.qrText = text
			m.lastStatusPoll = m.now()
		}
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.log.Warn("registration status poll failed", zap.Error(msg.err))
			return m, nil
		}
		if msg.status.Used {
			m.machine.RegistrationUsed(msg.token)
		}
		return m, nil

	case announcementMsg:
		if msg.err != nil {
			m.log.Warn("announcement fetch failed", zap.Error(msg.err))
			return m, nil
		}
		m.announcement = msg.a
		m.lastAnnPoll = m.now()
		return m, nil

	case subStateMsg:
		m.connected = msg.connected
		cmds := []tea.Cmd{m.waitForEvent()}
		if msg.connected {
			// 切れている間の変更を取りこぼさない
			cmds = append(cmds, m.fetchAnnouncement())
			if qr, ok := m.machine.QR(); ok {
				cmds = append(cmds, m.pollStatus(qr.Token))
			}
		}
		return m, tea.Batch(cmds...)

	case subEventMsg:
		cmds := []tea.Cmd{m.waitForEvent()}
		switch msg.ev.Type {
		case kiosk.EventRegistrationUsed:
			m.machine.RegistrationUsed(msg.ev.Token())
		case kiosk.EventAnnouncementChanged:
			cmds = append(cmds, m.fetchAnnouncement())
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit
	case key.Matches(msg, keys.Cancel):
		m.machine.Cancel()
	case key.Matches(msg, keys.Submit):
		if req, ok := m.machine.Submit(); ok {
			return m.run(req)
		}
	case key.Matches(msg, keys.Register):
		m.machine.Register()
	case key.Matches(msg, keys.Backspace):
		m.machine.Backspace()
	case msg.Type == tea.KeyRunes:
		m.machine.Type(string(msg.Runes))
	}
	return nil
}

// onTick: 自動リセットと、通知が切れている間のポーリング
func (m *Model) onTick(now time.Time) tea.Cmd {
	if m.machine.Tick(now) {
		m.qrText = ""
	}
	if m.connected {
		return nil
	}
	var cmds []tea.Cmd
	if qr, ok := m.machine.QR(); ok && now.Sub(m.lastStatusPoll) >= statusPollInterval {
		m.lastStatusPoll = now
		cmds = append(cmds, m.pollStatus(qr.Token))
	}
	if now.Sub(m.lastAnnPoll) >= announcementInterval {
		m.lastAnnPoll = now
		cmds = append(cmds, m.fetchAnnouncement())
	}
	return tea.Batch(cmds...)
}

func (m *Model) View() string {
	s := m.styles
	var b strings.Builder

	conn := s.online.Render("● 接続中")
	if !m.connected {
		conn = s.offline.Render("● 未接続（定期確認中）")
	}
	b.WriteString(s.title.Render("出席管理キオスク") + "  " + conn + "\n\n")

	if a := m.announcement; a != nil {
		body := s.accent.Render(a.Title)
		if a.Content != "" {
			body += "\n" + s.body.Render(a.Content)
		}
		b.WriteString(s.box.Render(body) + "\n\n")
	}

	b.WriteString(m.mainView() + "\n\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m *Model) mainView() string {
	s := m.styles
	mc := m.machine
	switch mc.State() {
	case kiosk.StateIdle:
		out := s.body.Render("カードをかざしてください")
		if n := mc.Notice(); n != "" {
			out += "\n" + s.dim.Render(n)
		}
		return out
	case kiosk.StateInput:
		return s.body.Render("カード読み取り中") + "\n" + s.input.Render(mc.Buffer())
	case kiosk.StateProcessing:
		return s.dim.Render(mc.Message())
	case kiosk.StateSuccess:
		return s.success.Render(mc.Message())
	case kiosk.StateError:
		return s.error.Render(mc.Message())
	case kiosk.StateRegister:
		return s.accent.Render(mc.Message()) + "\n" + s.input.Render(mc.Buffer())
	case kiosk.StateQR:
		qr, _ := mc.QR()
		rem := mc.Remaining(m.now()).Round(time.Second)
		out := s.body.Render("スマートフォンで読み取って登録を完了してください") + "\n"
		if m.qrText != "" {
			out += m.qrText
		}
		out += s.dim.Render(qr.URL) + "\n"
		out += s.accent.Render(fmt.Sprintf("残り %d:%02d", int(rem.Minutes()), int(rem.Seconds())%60))
		return out
	}
	return ""
}
