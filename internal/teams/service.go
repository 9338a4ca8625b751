package teams

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/apperr"
)

const maxNameLen = 64

type Store interface {
	ListTeams(ctx context.Context) ([]domain.Team, error)
	TeamByID(ctx context.Context, id int64) (*domain.Team, error)
	CreateTeam(ctx context.Context, t *domain.Team) error
	RenameTeam(ctx context.Context, id int64, name string) error
	DeleteTeam(ctx context.Context, id int64) error
	CountTeamMembers(ctx context.Context, teamID int64) (int, error)
}

type TeamResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

type TeamRequest struct {
	Name string `json:"name" binding:"required"`
}

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperr.Invalid("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", apperr.Invalid("name is too long")
	}
	return name, nil
}

// GET /teams（名前順）
func (s *Service) List(ctx context.Context) ([]TeamResponse, error) {
	rows, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	out := make([]TeamResponse, 0, len(rows))
	for _, t := range rows {
		n, err := s.store.CountTeamMembers(ctx, t.ID)
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		out = append(out, TeamResponse{ID: t.ID, Name: t.Name, MemberCount: n})
	}
	return out, nil
}

// POST /admin/teams
func (s *Service) Create(ctx context.Context, req TeamRequest) (TeamResponse, error) {
	name, err := validName(req.Name)
	if err != nil {
		return TeamResponse{}, err
	}
	t := domain.Team{Name: name}
	if err := s.store.CreateTeam(ctx, &t); err != nil {
		if errors.Is(err, domain.ErrDuplicateTeamName) {
			return TeamResponse{}, apperr.Conflict("team name already exists")
		}
		return TeamResponse{}, apperr.StoreUnavailable(err)
	}
	s.log.Info("team created", zap.Int64("team_id", t.ID), zap.String("name", t.Name))
	return TeamResponse{ID: t.ID, Name: t.Name}, nil
}

// PATCH /admin/teams/:id
func (s *Service) Rename(ctx context.Context, id int64, req TeamRequest) (TeamResponse, error) {
	name, err := validName(req.Name)
	if err != nil {
		return TeamResponse{}, err
	}
	if err := s.store.RenameTeam(ctx, id, name); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return TeamResponse{}, apperr.NotFound("team not found")
		case errors.Is(err, domain.ErrDuplicateTeamName):
			return TeamResponse{}, apperr.Conflict("team name already exists")
		}
		return TeamResponse{}, apperr.StoreUnavailable(err)
	}
	n, err := s.store.CountTeamMembers(ctx, id)
	if err != nil {
		return TeamResponse{}, apperr.StoreUnavailable(err)
	}
	return TeamResponse{ID: id, Name: name, MemberCount: n}, nil
}

// DELETE /admin/teams/:id（所属メンバーがいれば CONFLICT）
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteTeam(ctx, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return apperr.NotFound("team not found")
		case errors.Is(err, domain.ErrInUse):
			return apperr.Conflict("team still has members")
		}
		return apperr.StoreUnavailable(err)
	}
	s.log.Info("team deleted", zap.Int64("team_id", id))
	return nil
}
