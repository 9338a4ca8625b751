package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/memstore"
	"PRESENCE-backend/internal/notify"
	"PRESENCE-backend/internal/platform/apperr"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

var jst = time.FixedZone("JST", 9*3600)

func newTestService(t *testing.T, debounce time.Duration) (*Service, *memstore.Store, *fakeClock, *recordingPublisher) {
	t.Helper()
	st := memstore.New()
	clock := &fakeClock{t: time.Date(2025, 6, 2, 0, 30, 0, 0, time.UTC)} // JST 09:30
	pub := &recordingPublisher{}
	svc := NewService(st, pub, zap.NewNop(), Options{
		Location: jst,
		Debounce: debounce,
		Clock:    clock,
	})
	return svc, st, clock, pub
}

func seed(st *memstore.Store, name, card string) domain.Member {
	return st.SeedMember(domain.Member{ExternalID: "ext-" + name, DisplayName: name, CardID: card, Generation: 1, IsActive: true})
}

func TestFirstTapIsIn(t *testing.T) {
	svc, st, _, pub := newTestService(t, 0)
	seed(st, "太郎", "aabbcc")

	res, err := svc.Tap(context.Background(), "aabbcc")
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if res.Type != "in" || res.Duplicate || !res.OK {
		t.Fatalf("res = %+v", res)
	}
	if res.Message != "太郎さん、おはようございます。出席を記録しました" {
		t.Errorf("message = %q", res.Message)
	}
	if res.Event.AttendedOn != "2025-06-02" || res.Event.ID == "" {
		t.Errorf("event = %+v", res.Event)
	}
	if len(pub.events) != 1 || pub.events[0].Type != notify.TypeAttendanceToggled {
		t.Errorf("published = %+v", pub.events)
	}
}

func TestTapsAlternate(t *testing.T) {
	svc, st, clock, _ := newTestService(t, 3*time.Second)
	seed(st, "太郎", "aabbcc")

	want := []string{"in", "out", "in", "out", "in"}
	for i, w := range want {
		res, err := svc.Tap(context.Background(), "aabbcc")
		if err != nil {
			t.Fatalf("tap %d: %v", i, err)
		}
		if res.Type != w || res.Duplicate {
			t.Fatalf("tap %d: got %s (dup=%v), want %s", i, res.Type, res.Duplicate, w)
		}
		clock.Advance(time.Minute)
	}
	if got := st.EventCount(); got != len(want) {
		t.Errorf("events = %d", got)
	}
}

func TestSeparatorsResolveSameMember(t *testing.T) {
	svc, st, clock, _ := newTestService(t, 0)
	m := seed(st, "太郎", "aabbcc")

	a, err := svc.Tap(context.Background(), "AA:BB:CC")
	if err != nil {
		t.Fatalf("Tap(AA:BB:CC): %v", err)
	}
	clock.Advance(time.Minute)
	b, err := svc.Tap(context.Background(), "aabbcc")
	if err != nil {
		t.Fatalf("Tap(aabbcc): %v", err)
	}
	if a.Member.ID != m.ID || b.Member.ID != m.ID {
		t.Fatalf("members = %d, %d", a.Member.ID, b.Member.ID)
	}
	if a.Type != "in" || b.Type != "out" {
		t.Errorf("types = %s, %s", a.Type, b.Type)
	}
}

func TestDebounceReturnsLatest(t *testing.T) {
	svc, st, clock, pub := newTestService(t, 3*time.Second)
	seed(st, "太郎", "aabbcc")

	first, _ := svc.Tap(context.Background(), "aabbcc")
	clock.Advance(time.Second)
	second, err := svc.Tap(context.Background(), "aabbcc")
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if !second.Duplicate || second.Type != "in" || second.Event.ID != first.Event.ID {
		t.Fatalf("second = %+v", second)
	}
	if st.EventCount() != 1 || len(pub.events) != 1 {
		t.Errorf("events = %d, published = %d", st.EventCount(), len(pub.events))
	}

	clock.Advance(3 * time.Second)
	third, _ := svc.Tap(context.Background(), "aabbcc")
	if third.Duplicate || third.Type != "out" {
		t.Errorf("third = %+v", third)
	}
}

func TestConcurrentDuplicateTapsYieldOneEvent(t *testing.T) {
	svc, st, _, _ := newTestService(t, 3*time.Second)
	seed(st, "太郎", "aabbcc")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Tap(context.Background(), "AA:BB:CC"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Tap: %v", err)
	}
	if got := st.EventCount(); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
}

func TestConcurrentTapsWithoutDebounceStillAlternate(t *testing.T) {
	svc, st, _, _ := newTestService(t, 0)
	m := seed(st, "太郎", "aabbcc")

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Tap(context.Background(), "aabbcc")
		}()
	}
	wg.Wait()

	evs, err := st.EventsForMember(context.Background(), m.ID, "2025-06-01", "2025-06-30")
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != n {
		t.Fatalf("events = %d, want %d", len(evs), n)
	}
	for i, ev := range evs {
		want := domain.EventIn
		if i%2 == 1 {
			want = domain.EventOut
		}
		if ev.Type != want {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, want)
		}
	}
}

func TestUnknownAndInactiveCards(t *testing.T) {
	svc, st, _, _ := newTestService(t, 0)
	st.SeedMember(domain.Member{ExternalID: "x", DisplayName: "退部", CardID: "dead", IsActive: false})

	for _, card := range []string{"ffff", "DE:AD"} {
		_, err := svc.Tap(context.Background(), card)
		if apperr.CodeOf(err) != apperr.CodeUnknownCard {
			t.Errorf("Tap(%q) err = %v, want UNKNOWN_CARD", card, err)
		}
	}
	if _, err := svc.Tap(context.Background(), " : "); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("blank card err = %v", err)
	}
	if st.EventCount() != 0 {
		t.Errorf("no events expected, got %d", st.EventCount())
	}
}

func TestAttendedOnUsesLocalDate(t *testing.T) {
	svc, st, clock, _ := newTestService(t, 0)
	seed(st, "太郎", "aa")
	clock.t = time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC) // JST 6/3 01:00

	res, err := svc.Tap(context.Background(), "aa")
	if err != nil {
		t.Fatal(err)
	}
	if res.Event.AttendedOn != "2025-06-03" {
		t.Errorf("attended_on = %s", res.Event.AttendedOn)
	}
}

func TestForceSet(t *testing.T) {
	svc, st, _, _ := newTestService(t, time.Hour)
	m := seed(st, "太郎", "aa")

	ev, err := svc.ForceSet(context.Background(), 1, ForceRequest{MemberID: m.ID, Type: "OUT"})
	if err != nil {
		t.Fatalf("ForceSet: %v", err)
	}
	if ev.Type != "out" {
		t.Errorf("type = %s", ev.Type)
	}
	// debounce は force には効かない
	if _, err := svc.ForceSet(context.Background(), 1, ForceRequest{MemberID: m.ID, Type: "out"}); err != nil {
		t.Fatalf("second ForceSet: %v", err)
	}
	if st.EventCount() != 2 {
		t.Errorf("events = %d", st.EventCount())
	}

	if _, err := svc.ForceSet(context.Background(), 1, ForceRequest{MemberID: m.ID, Type: "maybe"}); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("bad type err = %v", err)
	}
	if _, err := svc.ForceSet(context.Background(), 1, ForceRequest{MemberID: 999, Type: "in"}); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("missing member err = %v", err)
	}
}

func TestForceLogoutAllIsIdempotent(t *testing.T) {
	svc, st, clock, _ := newTestService(t, 0)
	a := seed(st, "A", "aa")
	b := seed(st, "B", "bb")
	seed(st, "C", "cc")

	ctx := context.Background()
	_, _ = svc.Tap(ctx, "aa")
	_, _ = svc.Tap(ctx, "bb")
	_, _ = svc.Tap(ctx, "cc")
	_, _ = svc.Tap(ctx, "cc") // C は退出済み
	clock.Advance(time.Hour)

	actor := a.ID
	n, err := svc.ForceLogoutAll(ctx, &actor)
	if err != nil {
		t.Fatalf("ForceLogoutAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("affected = %d, want 2", n)
	}
	for _, id := range []int64{a.ID, b.ID} {
		s, _ := svc.Status(ctx, id)
		if s.Status != "out" {
			t.Errorf("member %d status = %s", id, s.Status)
		}
	}

	n, err = svc.ForceLogoutAll(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("second run = %d, %v", n, err)
	}
	logs, _ := svc.LogoutLogs(ctx, 0)
	if len(logs) != 1 || logs[0].AffectedCount != 2 || logs[0].ActorID == nil || *logs[0].ActorID != a.ID {
		t.Errorf("logs = %+v", logs)
	}
}

func TestStatusAndPresent(t *testing.T) {
	svc, st, _, _ := newTestService(t, 0)
	a := seed(st, "A", "aa")
	seed(st, "B", "bb")
	ctx := context.Background()

	s, err := svc.Status(ctx, a.ID)
	if err != nil || s.Status != "out" || s.Since != nil {
		t.Fatalf("no events: %+v %v", s, err)
	}
	_, _ = svc.Tap(ctx, "aa")
	s, _ = svc.Status(ctx, a.ID)
	if s.Status != "in" || s.Since == nil {
		t.Errorf("after tap: %+v", s)
	}

	present, err := svc.Present(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(present) != 1 || present[0].MemberID != a.ID {
		t.Errorf("present = %+v", present)
	}
}

func TestHistory(t *testing.T) {
	svc, st, clock, _ := newTestService(t, 0)
	a := seed(st, "A", "aa")
	ctx := context.Background()
	_, _ = svc.Tap(ctx, "aa")
	clock.Advance(time.Hour)
	_, _ = svc.Tap(ctx, "aa")

	evs, err := svc.History(ctx, a.ID, "2025-06")
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Type != "in" || evs[1].Type != "out" {
		t.Errorf("events = %+v", evs)
	}
	if evs, _ := svc.History(ctx, a.ID, "2025-05"); len(evs) != 0 {
		t.Errorf("other month: %+v", evs)
	}
	if _, err := svc.History(ctx, a.ID, "2025/06"); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("bad month err = %v", err)
	}
}
