package kiosk

import (
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func submitCard(t *testing.T, m *Machine, card string) Request {
	t.Helper()
	m.Type(card)
	req, ok := m.Submit()
	if !ok {
		t.Fatalf("Submit rejected in state %s", m.State())
	}
	return req
}

func TestTapFlow(t *testing.T) {
	m := NewMachine()
	if m.State() != StateIdle {
		t.Fatalf("initial state = %s", m.State())
	}

	m.Type("AA:BB")
	if m.State() != StateInput {
		t.Fatalf("state = %s, want input", m.State())
	}
	m.Type(":CC")
	req, ok := m.Submit()
	if !ok || req.Kind != RequestTap || req.CardID != "aabbcc" || req.Seq != 1 {
		t.Fatalf("req = %+v ok=%v", req, ok)
	}
	if m.State() != StateProcessing {
		t.Fatalf("state = %s, want processing", m.State())
	}

	if !m.Succeeded(req.Seq, "太郎さん、おはようございます", t0) {
		t.Fatal("Succeeded rejected")
	}
	if m.State() != StateSuccess || m.Message() == "" {
		t.Fatalf("state = %s msg=%q", m.State(), m.Message())
	}

	if m.Tick(t0.Add(ResetDelay - time.Millisecond)) {
		t.Fatal("reset before delay")
	}
	if !m.Tick(t0.Add(ResetDelay)) || m.State() != StateIdle {
		t.Fatalf("state after delay = %s", m.State())
	}
}

func TestInputIgnoredWhileProcessing(t *testing.T) {
	m := NewMachine()
	submitCard(t, m, "aabbcc")

	if m.Type("x") {
		t.Error("Type accepted while processing")
	}
	if _, ok := m.Submit(); ok {
		t.Error("Submit accepted while processing")
	}
	if m.Cancel() {
		t.Error("Cancel accepted while processing")
	}
	if m.Register() {
		t.Error("Register accepted while processing")
	}
	if m.State() != StateProcessing {
		t.Fatalf("state = %s", m.State())
	}
}

func TestEscapeLockedOnSuccess(t *testing.T) {
	m := NewMachine()
	req := submitCard(t, m, "aabbcc")
	m.Succeeded(req.Seq, "ok", t0)

	if m.Cancel() || m.State() != StateSuccess {
		t.Fatalf("Cancel changed success state to %s", m.State())
	}
	if m.Type("1") {
		t.Fatal("Type accepted on success screen")
	}
}

func TestErrorThenTypingStartsNewInput(t *testing.T) {
	m := NewMachine()
	req := submitCard(t, m, "ffff")
	m.Failed(req.Seq, "登録されていないカードです。「/」キーを押して登録してください", t0)
	if m.State() != StateError {
		t.Fatalf("state = %s", m.State())
	}
	if strings.Count(m.Message(), "「/」") != 1 {
		t.Errorf("message = %q", m.Message())
	}

	m.Type("a")
	if m.State() != StateInput || m.Buffer() != "a" {
		t.Fatalf("state = %s buf=%q", m.State(), m.Buffer())
	}
}

func TestCancelFromErrorAndRegister(t *testing.T) {
	m := NewMachine()
	req := submitCard(t, m, "ffff")
	m.Failed(req.Seq, "x", t0)
	if !m.Cancel() || m.State() != StateIdle {
		t.Fatalf("cancel from error: %s", m.State())
	}

	m.Register()
	m.Type("12")
	if !m.Cancel() || m.State() != StateIdle || m.Buffer() != "" {
		t.Fatalf("cancel from register: %s buf=%q", m.State(), m.Buffer())
	}
}

func TestStaleResultIgnored(t *testing.T) {
	m := NewMachine()
	first := submitCard(t, m, "aaaa")

	// 応答が来る前に別セッションに進んだ体で seq を進める
	m.Failed(first.Seq, "timeout", t0)
	m.Cancel()
	second := submitCard(t, m, "bbbb")
	if second.Seq == first.Seq {
		t.Fatal("seq not advanced")
	}

	if m.Succeeded(first.Seq, "late", t0) {
		t.Fatal("stale result accepted")
	}
	if m.State() != StateProcessing {
		t.Fatalf("state = %s", m.State())
	}
	if !m.Succeeded(second.Seq, "ok", t0) {
		t.Fatal("current result rejected")
	}
}

func TestRegisterToQRAndUsed(t *testing.T) {
	m := NewMachine()
	if !m.Register() || m.State() != StateRegister {
		t.Fatalf("state = %s", m.State())
	}
	req := submitCard(t, m, "0A:0B")
	if req.Kind != RequestBegin || req.CardID != "0a0b" {
		t.Fatalf("req = %+v", req)
	}

	qr := QRInfo{Token: "tok", URL: "https://example.test/register/tok", ExpiresAt: t0.Add(30 * time.Minute)}
	if !m.Issued(req.Seq, qr) || m.State() != StateQR {
		t.Fatalf("state = %s", m.State())
	}
	if got := m.Remaining(t0.Add(10 * time.Minute)); got != 20*time.Minute {
		t.Errorf("remaining = %v", got)
	}
	if m.Type("x") {
		t.Error("typing accepted on QR screen")
	}

	if m.RegistrationUsed("other") {
		t.Fatal("foreign token accepted")
	}
	if !m.RegistrationUsed("tok") || m.State() != StateIdle || m.Notice() == "" {
		t.Fatalf("state = %s notice=%q", m.State(), m.Notice())
	}
}

func TestQRExpires(t *testing.T) {
	m := NewMachine()
	m.Register()
	req := submitCard(t, m, "0a0b")
	m.Issued(req.Seq, QRInfo{Token: "tok", ExpiresAt: t0.Add(time.Minute)})

	if m.Tick(t0.Add(59 * time.Second)) {
		t.Fatal("expired early")
	}
	if !m.Tick(t0.Add(time.Minute)) || m.State() != StateIdle {
		t.Fatalf("state = %s", m.State())
	}
	if m.Notice() != qrExpiredNotice {
		t.Errorf("notice = %q", m.Notice())
	}
}

func TestRegisterFailureCarriesRetryHint(t *testing.T) {
	m := NewMachine()
	m.Register()
	req := submitCard(t, m, "aabbcc")
	m.Failed(req.Seq, "このカードはすでに登録されています", t0)
	if !strings.Contains(m.Message(), registerRetryHint) {
		t.Fatalf("message = %q", m.Message())
	}
}

func TestEmptySubmitIgnored(t *testing.T) {
	m := NewMachine()
	m.Type(" :: ")
	if _, ok := m.Submit(); ok {
		t.Fatal("blank card submitted")
	}
	if m.State() != StateInput {
		t.Fatalf("state = %s", m.State())
	}
}

func TestIssuedOnlyForBegin(t *testing.T) {
	m := NewMachine()
	req := submitCard(t, m, "aabbcc")
	if m.Issued(req.Seq, QRInfo{Token: "tok"}) {
		t.Fatal("Issued accepted for tap request")
	}
}
