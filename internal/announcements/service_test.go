package announcements

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/memstore"
	"PRESENCE-backend/internal/notify"
	"PRESENCE-backend/internal/platform/apperr"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

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

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newTestService() (*Service, *memstore.Store, *recordingPublisher) {
	st := memstore.New()
	pub := &recordingPublisher{}
	clock := fixedClock{t: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)}
	return NewService(st, pub, clock, zap.NewNop()), st, pub
}

func TestCurrentEmptyWhenNoneSet(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, CreateRequest{Title: "お知らせ"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if res.Announcement != nil {
		t.Fatalf("announcement = %+v, want nil", res.Announcement)
	}
}

func TestSetCurrentKeepsSingleCurrent(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()

	a, _ := svc.Create(ctx, 1, CreateRequest{Title: "A"})
	b, _ := svc.Create(ctx, 1, CreateRequest{Title: "B"})

	if _, err := svc.SetCurrent(ctx, a.ID); err != nil {
		t.Fatalf("SetCurrent(a): %v", err)
	}
	if _, err := svc.SetCurrent(ctx, b.ID); err != nil {
		t.Fatalf("SetCurrent(b): %v", err)
	}

	list, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	n := 0
	for _, x := range list {
		if x.IsCurrent {
			n++
			if x.ID != b.ID {
				t.Errorf("current id = %d, want %d", x.ID, b.ID)
			}
		}
	}
	if n != 1 {
		t.Fatalf("current count = %d, want 1", n)
	}
	if pub.count() != 2 {
		t.Errorf("published = %d, want 2", pub.count())
	}

	cur, _ := svc.Current(ctx)
	if cur.Announcement == nil || cur.Announcement.Title != "B" {
		t.Fatalf("current = %+v", cur.Announcement)
	}
}

func TestCreateWithSetCurrent(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()

	res, err := svc.Create(ctx, 7, CreateRequest{Title: "  練習中止  ", Content: "雨天のため", SetCurrent: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.IsCurrent || res.Title != "練習中止" || res.AuthorID != 7 {
		t.Fatalf("res = %+v", res)
	}
	if pub.count() != 1 {
		t.Errorf("published = %d, want 1", pub.count())
	}
}

func TestDeleteClearsCurrent(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()

	a, _ := svc.Create(ctx, 1, CreateRequest{Title: "A", SetCurrent: true})
	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	cur, _ := svc.Current(ctx)
	if cur.Announcement != nil {
		t.Fatalf("current after delete = %+v", cur.Announcement)
	}
	if pub.count() != 2 {
		t.Errorf("published = %d, want 2", pub.count())
	}

	list, _ := svc.List(ctx, false)
	if len(list) != 0 {
		t.Errorf("active list = %d, want 0", len(list))
	}
	all, _ := svc.List(ctx, true)
	if len(all) != 1 || all[0].IsActive {
		t.Errorf("all = %+v", all)
	}

	if err := svc.Delete(ctx, a.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("second delete code = %q", apperr.CodeOf(err))
	}
}

func TestSetCurrentOnDeletedIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.Create(ctx, 1, CreateRequest{Title: "A"})
	_ = svc.Delete(ctx, a.ID)

	if _, err := svc.SetCurrent(ctx, a.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("code = %q, want NOT_FOUND", apperr.CodeOf(err))
	}
	if _, err := svc.SetCurrent(ctx, 999); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("code = %q, want NOT_FOUND", apperr.CodeOf(err))
	}
}

func TestUpdateValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, 1, CreateRequest{Title: "A"})

	empty := "   "
	if _, err := svc.Update(ctx, a.ID, UpdateRequest{Title: &empty}); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("empty title code = %q", apperr.CodeOf(err))
	}

	long := strings.Repeat("あ", maxTitleLen+1)
	if _, err := svc.Update(ctx, a.ID, UpdateRequest{Title: &long}); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Errorf("long title code = %q", apperr.CodeOf(err))
	}

	body := "本文"
	res, err := svc.Update(ctx, a.ID, UpdateRequest{Content: &body})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Title != "A" || res.Content != "本文" {
		t.Errorf("res = %+v", res)
	}
}

func TestClearCurrent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, _ = svc.Create(ctx, 1, CreateRequest{Title: "A", SetCurrent: true})

	if err := svc.ClearCurrent(ctx); err != nil {
		t.Fatalf("ClearCurrent: %v", err)
	}
	cur, _ := svc.Current(ctx)
	if cur.Announcement != nil {
		t.Fatalf("current = %+v", cur.Announcement)
	}
}

func TestKioskAnnouncementRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestService()
	_, _ = svc.Create(context.Background(), 1, CreateRequest{Title: "合宿のお知らせ", SetCurrent: true})

	r := gin.New()
	g := r.Group("/api/v2")
	RegisterRoutes(g, g, g, svc, zap.NewNop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/kiosk/announcement", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "合宿のお知らせ") {
		t.Errorf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v2/admin/announcements/abc/current", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
}
