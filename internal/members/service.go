package members

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/apperr"
)

type Store interface {
	MemberByID(ctx context.Context, id int64) (*domain.Member, error)
	MemberByExternalID(ctx context.Context, externalID string) (*domain.Member, error)
	ListMembers(ctx context.Context, f domain.MemberFilter) ([]domain.Member, error)
	UpdateMember(ctx context.Context, m *domain.Member, logs []domain.UserEditLogEntry) error
	ListEditLogs(ctx context.Context, targetID *int64, limit int) ([]domain.UserEditLogEntry, error)
	TeamByID(ctx context.Context, id int64) (*domain.Team, error)
}

type Service struct {
	store Store
	grade domain.GradeRule
	clock domain.Clock
	log   *zap.Logger
}

func NewService(store Store, grade domain.GradeRule, clock domain.Clock, log *zap.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Service{store: store, grade: grade, clock: clock, log: log}
}

func (s *Service) toDTO(m *domain.Member) MemberResponse {
	return MemberResponse{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		CardID:      m.CardID,
		Generation:  m.Generation,
		Grade:       s.grade.Label(m.Generation, s.clock.Now()),
		TeamID:      m.TeamID,
		Role:        string(m.Role),
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ResolveMember: auth.MemberResolver。無効化されたメンバーは未登録扱い
func (s *Service) ResolveMember(ctx context.Context, externalID string) (int64, string, bool, error) {
	m, err := s.store.MemberByExternalID(ctx, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	if !m.IsActive {
		return 0, "", false, nil
	}
	return m.ID, string(m.Role), true, nil
}

// GET /admin/members/:id, GET /me
func (s *Service) Get(ctx context.Context, id int64) (MemberResponse, error) {
	m, err := s.store.MemberByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return MemberResponse{}, apperr.NotFound("member not found")
	}
	if err != nil {
		return MemberResponse{}, apperr.StoreUnavailable(err)
	}
	return s.toDTO(m), nil
}

// GET /admin/members
func (s *Service) List(ctx context.Context, f domain.MemberFilter) ([]MemberResponse, error) {
	rows, err := s.store.ListMembers(ctx, f)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out := make([]MemberResponse, 0, len(rows))
	for i := range rows {
		out = append(out, s.toDTO(&rows[i]))
	}
	return out, nil
}

// PATCH /admin/members/:id
// 変更のあったフィールドごとに user_edit_logs を1行書く
func (s *Service) Update(ctx context.Context, actorID, id int64, req UpdateMemberRequest) (MemberResponse, error) {
	cur, err := s.store.MemberByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return MemberResponse{}, apperr.NotFound("member not found")
	}
	if err != nil {
		return MemberResponse{}, apperr.StoreUnavailable(err)
	}

	next := *cur
	var logs []domain.UserEditLogEntry
	change := func(field, oldV, newV string) {
		if oldV == newV {
			return
		}
		logs = append(logs, domain.UserEditLogEntry{
			ActorID: actorID, TargetID: id, Field: field, OldValue: oldV, NewValue: newV,
		})
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return MemberResponse{}, apperr.Invalid("display_name must not be empty")
		}
		change("display_name", cur.DisplayName, name)
		next.DisplayName = name
	}
	if req.CardID != nil {
		card := domain.NormalizeCardID(*req.CardID)
		if card == "" {
			return MemberResponse{}, apperr.Invalid("card_id must not be empty")
		}
		change("card_id", cur.CardID, card)
		next.CardID = card
	}
	if req.Generation != nil {
		if *req.Generation < 0 {
			return MemberResponse{}, apperr.Invalid("generation must be >= 0")
		}
		change("generation", strconv.Itoa(cur.Generation), strconv.Itoa(*req.Generation))
		next.Generation = *req.Generation
	}
	switch {
	case req.ClearTeam:
		change("team_id", teamString(cur.TeamID), "")
		next.TeamID = nil
	case req.TeamID != nil:
		if _, err := s.store.TeamByID(ctx, *req.TeamID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return MemberResponse{}, apperr.Invalid("team not found")
			}
			return MemberResponse{}, apperr.StoreUnavailable(err)
		}
		tid := *req.TeamID
		change("team_id", teamString(cur.TeamID), teamString(&tid))
		next.TeamID = &tid
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		if !role.Valid() {
			return MemberResponse{}, apperr.Invalid("role must be member or admin")
		}
		if actorID == id && role != cur.Role {
			return MemberResponse{}, apperr.Invalid("cannot change your own role")
		}
		change("role", string(cur.Role), string(role))
		next.Role = role
	}
	if req.IsActive != nil {
		change("is_active", strconv.FormatBool(cur.IsActive), strconv.FormatBool(*req.IsActive))
		next.IsActive = *req.IsActive
	}

	if len(logs) == 0 {
		return s.toDTO(cur), nil
	}

	if err := s.store.UpdateMember(ctx, &next, logs); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return MemberResponse{}, apperr.NotFound("member not found")
		case errors.Is(err, domain.ErrDuplicateDisplayName):
			return MemberResponse{}, apperr.DuplicateDisplayName()
		case errors.Is(err, domain.ErrDuplicateCard):
			return MemberResponse{}, apperr.Conflict("card_id is already assigned to another member")
		}
		return MemberResponse{}, apperr.StoreUnavailable(err)
	}
	s.log.Info("member updated",
		zap.Int64("actor_id", actorID),
		zap.Int64("target_id", id),
		zap.Int("fields", len(logs)),
	)
	return s.Get(ctx, id)
}

// GET /admin/logs/edits
func (s *Service) EditLogs(ctx context.Context, targetID *int64, limit int) ([]EditLogResponse, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	rows, err := s.store.ListEditLogs(ctx, targetID, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out := make([]EditLogResponse, 0, len(rows))
	for _, l := range rows {
		out = append(out, editLogToDTO(l))
	}
	return out, nil
}

func teamString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
