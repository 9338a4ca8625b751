package registration

import (
	"context"
	"errors"
	"fmt"
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

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
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

var t0 = time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memstore.Store, *fakeClock, *recordingPublisher) {
	t.Helper()
	st := memstore.New()
	clock := &fakeClock{t: t0}
	pub := &recordingPublisher{}
	svc := NewService(st, pub, zap.NewNop(), Options{
		BaseURL: "https://presence.example.com/",
		TTL:     30 * time.Minute,
		Clock:   clock,
	})
	return svc, st, clock, pub
}

func details(name string) CompleteRequest {
	return CompleteRequest{DisplayName: name, Generation: 3}
}

func TestBeginIssuesTokenAndURL(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	res, err := svc.Begin(context.Background(), "AA:BB:CC")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Token == "" || res.URL != "https://presence.example.com/register/"+res.Token {
		t.Errorf("res = %+v", res)
	}
	if !res.ExpiresAt.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("expires_at = %s", res.ExpiresAt)
	}

	st, err := svc.Fetch(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if st.CardID != "aabbcc" {
		t.Errorf("card_id = %q", st.CardID)
	}
}

func TestBeginRegisteredCard(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	st.SeedMember(domain.Member{ExternalID: "e", DisplayName: "太郎", CardID: "aabbcc", IsActive: true})
	_, err := svc.Begin(context.Background(), "AA:BB:CC")
	if apperr.CodeOf(err) != apperr.CodeAlreadyRegistered {
		t.Fatalf("err = %v", err)
	}
}

func TestBeginAgainReplacesToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	first, _ := svc.Begin(ctx, "aa")
	second, err := svc.Begin(ctx, "aa")
	if err != nil {
		t.Fatal(err)
	}
	if first.Token == second.Token {
		t.Fatal("token must be regenerated")
	}
	if _, err := svc.Fetch(ctx, first.Token); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("old token err = %v", err)
	}
}

func TestFetchStampsAccessedOnce(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	ctx := context.Background()
	b, _ := svc.Begin(ctx, "aa")

	if s, _ := svc.Status(ctx, b.Token); s.Accessed {
		t.Fatal("status must not stamp accessed_at")
	}

	clock.Set(t0.Add(time.Minute))
	first, err := svc.Fetch(ctx, b.Token)
	if err != nil || first.AccessedAt == nil {
		t.Fatalf("first fetch: %+v %v", first, err)
	}
	clock.Set(t0.Add(5 * time.Minute))
	second, _ := svc.Fetch(ctx, b.Token)
	if second.AccessedAt == nil || !second.AccessedAt.Equal(*first.AccessedAt) {
		t.Errorf("accessed_at changed: %v -> %v", first.AccessedAt, second.AccessedAt)
	}

	if _, err := svc.Fetch(ctx, "nope"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("unknown token err = %v", err)
	}
}

func TestCompleteTwice(t *testing.T) {
	svc, st, _, pub := newTestService(t)
	ctx := context.Background()
	b, _ := svc.Begin(ctx, "aa")

	res, err := svc.Complete(ctx, b.Token, details("太郎"), "ext-1")
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if !res.OK || res.Member.ID == 0 {
		t.Errorf("res = %+v", res)
	}
	m, err := st.MemberByCard(ctx, "aa")
	if err != nil || m.ExternalID != "ext-1" || !m.IsActive || m.Role != domain.RoleMember {
		t.Fatalf("member = %+v %v", m, err)
	}

	_, err = svc.Complete(ctx, b.Token, details("次郎"), "ext-2")
	if apperr.CodeOf(err) != apperr.CodeAlreadyUsed {
		t.Fatalf("second Complete err = %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != notify.TypeRegistrationUsed || pub.events[0].Data["token"] != b.Token {
		t.Errorf("published = %+v", pub.events)
	}
}

func TestCompleteExpired(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	tr := st.SeedTempRegistration(domain.TempRegistration{
		CardID: "aa", Token: "tok", CreatedAt: t0.Add(-time.Hour), ExpiresAt: t0.Add(-time.Second),
	})
	_, err := svc.Complete(context.Background(), tr.Token, details("太郎"), "ext-1")
	if apperr.CodeOf(err) != apperr.CodeExpired {
		t.Fatalf("err = %v, want EXPIRED", err)
	}
}

func TestCompleteExpiryBoundary(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	tr := st.SeedTempRegistration(domain.TempRegistration{CardID: "aa", Token: "tok", CreatedAt: t0.Add(-30 * time.Minute), ExpiresAt: t0})
	if _, err := svc.Complete(context.Background(), tr.Token, details("太郎"), "ext-1"); err != nil {
		t.Fatalf("now == expires_at is still valid: %v", err)
	}
}

func TestCompleteCheckOrder(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	past := t0.Add(-time.Second)
	st.SeedTempRegistration(domain.TempRegistration{CardID: "u1", Token: "used-expired", ExpiresAt: past, Used: true})
	st.SeedTempRegistration(domain.TempRegistration{CardID: "u2", Token: "expired", ExpiresAt: past})
	st.SeedTempRegistration(domain.TempRegistration{CardID: "u3", Token: "live", ExpiresAt: t0.Add(time.Minute)})

	cases := []struct {
		token, ext string
		want       apperr.Code
	}{
		{"missing", "", apperr.CodeInvalidSession},
		{"used-expired", "", apperr.CodeAlreadyUsed},
		{"expired", "", apperr.CodeExpired},
		{"live", "", apperr.CodeUnauthenticated},
	}
	for _, tc := range cases {
		_, err := svc.Complete(ctx, tc.token, details("太郎"), tc.ext)
		if apperr.CodeOf(err) != tc.want {
			t.Errorf("%s: err = %v, want %s", tc.token, err, tc.want)
		}
	}
}

func TestCompleteDuplicateIdentity(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	st.SeedMember(domain.Member{ExternalID: "ext-1", DisplayName: "太郎", CardID: "zz", IsActive: true})
	b, _ := svc.Begin(ctx, "aa")

	_, err := svc.Complete(ctx, b.Token, details("花子"), "ext-1")
	if !errors.Is(err, apperr.DuplicateExternalID()) {
		t.Errorf("external id err = %v", err)
	}
	_, err = svc.Complete(ctx, b.Token, details("太郎"), "ext-2")
	if !errors.Is(err, apperr.DuplicateDisplayName()) {
		t.Errorf("display name err = %v", err)
	}
	// 失敗では used にならない
	if _, err := svc.Complete(ctx, b.Token, details("花子"), "ext-2"); err != nil {
		t.Errorf("retry after duplicate: %v", err)
	}
}

func TestCompleteValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	b, _ := svc.Begin(ctx, "aa")
	missingTeam := int64(42)

	for _, req := range []CompleteRequest{
		{DisplayName: "  ", Generation: 1},
		{DisplayName: "太郎", Generation: 0},
		{DisplayName: "太郎", Generation: 1, TeamID: &missingTeam},
	} {
		if _, err := svc.Complete(ctx, b.Token, req, "ext-1"); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
			t.Errorf("%+v: err = %v", req, err)
		}
	}
}

func TestConcurrentCompleteYieldsOneSuccess(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	b, _ := svc.Begin(ctx, "aa")

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		used    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Complete(ctx, b.Token, details(fmt.Sprintf("user%d", i)), fmt.Sprintf("ext-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch apperr.CodeOf(err) {
			case apperr.CodeAlreadyUsed:
				used++
			default:
				if err == nil {
					success++
				} else {
					t.Errorf("unexpected err: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if success != 1 || used != n-1 {
		t.Fatalf("success = %d, already used = %d", success, used)
	}
	all, _ := st.ListMembers(ctx, domain.MemberFilter{})
	if len(all) != 1 {
		t.Errorf("members = %d, want 1", len(all))
	}
}

// reissuingStore: 重複確認の直後（CAS の直前）に一度だけ hook を走らせる
type reissuingStore struct {
	*memstore.Store
	once sync.Once
	hook func()
}

func (s *reissuingStore) DisplayNameTaken(ctx context.Context, name string) (bool, error) {
	taken, err := s.Store.DisplayNameTaken(ctx, name)
	s.once.Do(s.hook)
	return taken, err
}

func TestCompleteWithReplacedTokenKeepsNewSession(t *testing.T) {
	st := &reissuingStore{Store: memstore.New()}
	svc := NewService(st, notify.Nop{}, zap.NewNop(), Options{
		BaseURL: "https://presence.example.com/",
		TTL:     30 * time.Minute,
		Clock:   &fakeClock{t: t0},
	})
	ctx := context.Background()
	old, _ := svc.Begin(ctx, "aabbcc")

	var fresh BeginResponse
	st.hook = func() {
		var err error
		if fresh, err = svc.Begin(ctx, "aabbcc"); err != nil {
			t.Errorf("re-Begin: %v", err)
		}
	}

	_, err := svc.Complete(ctx, old.Token, details("太郎"), "ext-1")
	if apperr.CodeOf(err) != apperr.CodeInvalidSession {
		t.Fatalf("old token err = %v", err)
	}
	if _, err := st.MemberByCard(ctx, "aabbcc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("card bound through replaced token: %v", err)
	}

	s, err := svc.Status(ctx, fresh.Token)
	if err != nil || s.Used {
		t.Fatalf("fresh session = %+v %v", s, err)
	}
	if _, err := svc.Complete(ctx, fresh.Token, details("太郎"), "ext-1"); err != nil {
		t.Fatalf("fresh token Complete: %v", err)
	}
}
