package members

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/memstore"
	"PRESENCE-backend/internal/platform/apperr"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	rule := domain.GradeRule{BaseYear: 2023, MaxGrade: 3, Location: time.UTC}
	clock := fixedClock{time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)}
	return NewService(st, rule, clock, zap.NewNop()), st
}

func strp(s string) *string { return &s }

func TestResolveMember(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	admin := st.SeedMember(domain.Member{ExternalID: "ext-admin", DisplayName: "admin", CardID: "01", Role: domain.RoleAdmin, IsActive: true})
	st.SeedMember(domain.Member{ExternalID: "ext-off", DisplayName: "off", CardID: "02", IsActive: false})

	id, role, ok, err := svc.ResolveMember(ctx, "ext-admin")
	if err != nil || !ok || id != admin.ID || role != "admin" {
		t.Fatalf("got %d %q %v %v", id, role, ok, err)
	}
	if _, _, ok, _ := svc.ResolveMember(ctx, "ext-off"); ok {
		t.Error("inactive member must not resolve")
	}
	if _, _, ok, _ := svc.ResolveMember(ctx, "nobody"); ok {
		t.Error("unknown external id must not resolve")
	}
}

func TestUpdateWritesOneLogPerChangedField(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	team := st.SeedTeam("ロボット班")
	actor := st.SeedMember(domain.Member{ExternalID: "a", DisplayName: "管理者", CardID: "aa", Role: domain.RoleAdmin, IsActive: true})
	target := st.SeedMember(domain.Member{ExternalID: "b", DisplayName: "太郎", CardID: "bb", Generation: 2, IsActive: true})

	gen := 2 // 変更なし
	res, err := svc.Update(ctx, actor.ID, target.ID, UpdateMemberRequest{
		DisplayName: strp("次郎"),
		CardID:      strp("CC:DD"),
		Generation:  &gen,
		TeamID:      &team.ID,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.DisplayName != "次郎" || res.CardID != "ccdd" || res.TeamID == nil || *res.TeamID != team.ID {
		t.Errorf("response = %+v", res)
	}
	if res.Grade != "2年" {
		t.Errorf("grade = %q", res.Grade)
	}

	logs, err := svc.EditLogs(ctx, &target.ID, 0)
	if err != nil {
		t.Fatalf("EditLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("logs = %d, want 3 (display_name, card_id, team_id)", len(logs))
	}
	fields := map[string]EditLogResponse{}
	for _, l := range logs {
		fields[l.Field] = l
		if l.ActorID != actor.ID {
			t.Errorf("actor = %d", l.ActorID)
		}
	}
	if l := fields["display_name"]; l.OldValue != "太郎" || l.NewValue != "次郎" {
		t.Errorf("display_name log = %+v", l)
	}
	if _, ok := fields["generation"]; ok {
		t.Error("unchanged generation must not be logged")
	}
}

func TestUpdateDuplicateDisplayName(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.SeedMember(domain.Member{ExternalID: "a", DisplayName: "太郎", CardID: "aa", IsActive: true})
	b := st.SeedMember(domain.Member{ExternalID: "b", DisplayName: "花子", CardID: "bb", IsActive: true})

	_, err := svc.Update(ctx, 99, b.ID, UpdateMemberRequest{DisplayName: strp("太郎")})
	if !errors.Is(err, apperr.DuplicateDisplayName()) {
		t.Fatalf("err = %v, want duplicate display name", err)
	}
	logs, _ := svc.EditLogs(ctx, &b.ID, 0)
	if len(logs) != 0 {
		t.Errorf("failed update must not write logs, got %d", len(logs))
	}
}

func TestUpdateRejectsOwnRoleChange(t *testing.T) {
	svc, st := newTestService(t)
	a := st.SeedMember(domain.Member{ExternalID: "a", DisplayName: "admin", CardID: "aa", Role: domain.RoleAdmin, IsActive: true})
	_, err := svc.Update(context.Background(), a.ID, a.ID, UpdateMemberRequest{Role: strp("member")})
	if apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("err = %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 42)
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("err = %v", err)
	}
}
