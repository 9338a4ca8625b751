package registration

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/notify"
	"PRESENCE-backend/internal/platform/apperr"
	"PRESENCE-backend/internal/platform/metrics"
)

const maxDisplayNameLen = 32

type Store interface {
	MemberByCard(ctx context.Context, cardID string) (*domain.Member, error)
	MemberByExternalID(ctx context.Context, externalID string) (*domain.Member, error)
	DisplayNameTaken(ctx context.Context, name string) (bool, error)
	TeamByID(ctx context.Context, id int64) (*domain.Team, error)
	UpsertTempRegistration(ctx context.Context, tr *domain.TempRegistration) error
	TempRegistrationByToken(ctx context.Context, token string) (*domain.TempRegistration, error)
	MarkTempAccessed(ctx context.Context, id int64, at time.Time) error
	CompleteRegistration(ctx context.Context, tempID int64, token string, usedAt time.Time, m *domain.Member) error
}

type Options struct {
	// BaseURL: 登録ページの URL は {BaseURL}/register/{token}
	BaseURL string
	TTL     time.Duration
	Clock   domain.Clock
	Metrics *metrics.Metrics
}

type Service struct {
	store   Store
	pub     notify.Publisher
	log     *zap.Logger
	baseURL string
	ttl     time.Duration
	clock   domain.Clock
	m       *metrics.Metrics

	// newToken: テストで差し替え
	newToken func() string
}

func NewService(store Store, pub notify.Publisher, log *zap.Logger, opts Options) *Service {
	s := &Service{
		store:    store,
		pub:      pub,
		log:      log,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		ttl:      opts.TTL,
		clock:    opts.Clock,
		m:        opts.Metrics,
		newToken: uuid.NewString,
	}
	if s.pub == nil {
		s.pub = notify.Nop{}
	}
	if s.ttl <= 0 {
		s.ttl = 30 * time.Minute
	}
	if s.clock == nil {
		s.clock = domain.SystemClock{}
	}
	return s
}

func (s *Service) URLFor(token string) string {
	return s.baseURL + "/register/" + token
}

// Begin: 未登録カードに仮登録トークンを発行する（カード単位で上書き）
func (s *Service) Begin(ctx context.Context, rawCard string) (BeginResponse, error) {
	card := domain.NormalizeCardID(rawCard)
	if card == "" {
		return BeginResponse{}, apperr.Invalid("card_id is required")
	}

	_, err := s.store.MemberByCard(ctx, card)
	switch {
	case err == nil:
		s.m.Registration("begin", "already_registered")
		return BeginResponse{}, apperr.AlreadyRegistered()
	case !errors.Is(err, domain.ErrNotFound):
		s.m.Registration("begin", "error")
		return BeginResponse{}, apperr.StoreUnavailable(err)
	}

	now := s.clock.Now().UTC()
	tr := domain.TempRegistration{
		CardID:    card,
		Token:     s.newToken(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.UpsertTempRegistration(ctx, &tr); err != nil {
		s.m.Registration("begin", "error")
		return BeginResponse{}, apperr.StoreUnavailable(err)
	}

	s.m.Registration("begin", "ok")
	s.log.Info("registration started", zap.Int64("temp_id", tr.ID), zap.Time("expires_at", tr.ExpiresAt))
	return BeginResponse{
		OK:        true,
		Message:   "スマートフォンで QR コードを読み取って登録を続けてください",
		Token:     tr.Token,
		URL:       s.URLFor(tr.Token),
		ExpiresAt: tr.ExpiresAt,
	}, nil
}

// Fetch: トークンで仮登録を引く。初回のみ accessed_at を刻む
func (s *Service) Fetch(ctx context.Context, token string) (FetchResponse, error) {
	tr, err := s.lookup(ctx, token)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInvalidSession {
			return FetchResponse{}, apperr.NotFound("registration not found")
		}
		return FetchResponse{}, err
	}

	now := s.clock.Now().UTC()
	if tr.AccessedAt == nil {
		if err := s.store.MarkTempAccessed(ctx, tr.ID, now); err != nil {
			return FetchResponse{}, apperr.StoreUnavailable(err)
		}
		tr.AccessedAt = &now
	}
	return toFetchDTO(tr, now), nil
}

// Status: キオスクのポーリング用。accessed_at は刻まない
func (s *Service) Status(ctx context.Context, token string) (StatusResponse, error) {
	tr, err := s.lookup(ctx, token)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInvalidSession {
			return StatusResponse{}, apperr.NotFound("registration not found")
		}
		return StatusResponse{}, err
	}
	now := s.clock.Now()
	return StatusResponse{
		Used:      tr.Used,
		Expired:   tr.Expired(now),
		Accessed:  tr.AccessedAt != nil,
		ExpiresAt: tr.ExpiresAt,
	}, nil
}

func (s *Service) lookup(ctx context.Context, token string) (*domain.TempRegistration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.InvalidSession()
	}
	tr, err := s.store.TempRegistrationByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.InvalidSession()
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return tr, nil
}

// Complete: 判定順は InvalidSession → AlreadyUsed → Expired → Unauthenticated。
// externalID は IdP が検証済みの識別子（未ログインは空）
func (s *Service) Complete(ctx context.Context, token string, req CompleteRequest, externalID string) (CompleteResponse, error) {
	res, err := s.complete(ctx, token, req, externalID)
	if err != nil {
		s.m.Registration("complete", strings.ToLower(string(apperr.CodeOf(err))))
		return CompleteResponse{}, err
	}
	s.m.Registration("complete", "ok")
	return res, nil
}

// CheckSession: 入力内容より先に判定する4項目だけを見る。
// 本文が壊れていてもセッション側のエラーを優先して返すのに使う
func (s *Service) CheckSession(ctx context.Context, token, externalID string) error {
	_, err := s.session(ctx, token, externalID, s.clock.Now())
	return err
}

func (s *Service) session(ctx context.Context, token, externalID string, now time.Time) (*domain.TempRegistration, error) {
	tr, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if tr.Used {
		return nil, apperr.AlreadyUsed()
	}
	if tr.Expired(now) {
		return nil, apperr.Expired()
	}
	if externalID == "" {
		return nil, apperr.Unauthenticated()
	}
	return tr, nil
}

func (s *Service) complete(ctx context.Context, token string, req CompleteRequest, externalID string) (CompleteResponse, error) {
	now := s.clock.Now()
	tr, err := s.session(ctx, token, externalID, now)
	if err != nil {
		return CompleteResponse{}, err
	}

	name := strings.TrimSpace(req.DisplayName)
	switch {
	case name == "":
		return CompleteResponse{}, apperr.Invalid("表示名を入力してください")
	case utf8.RuneCountInString(name) > maxDisplayNameLen:
		return CompleteResponse{}, apperr.Invalid("表示名が長すぎます")
	case req.Generation < 1:
		return CompleteResponse{}, apperr.Invalid("期を正しく入力してください")
	}
	if req.TeamID != nil {
		if _, err := s.store.TeamByID(ctx, *req.TeamID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return CompleteResponse{}, apperr.Invalid("班が見つかりません")
			}
			return CompleteResponse{}, apperr.StoreUnavailable(err)
		}
	}

	// 重複は先に見て利用者向けの理由を返す。最終判定は UNIQUE 制約
	if _, err := s.store.MemberByExternalID(ctx, externalID); err == nil {
		return CompleteResponse{}, apperr.DuplicateExternalID()
	} else if !errors.Is(err, domain.ErrNotFound) {
		return CompleteResponse{}, apperr.StoreUnavailable(err)
	}
	taken, err := s.store.DisplayNameTaken(ctx, name)
	if err != nil {
		return CompleteResponse{}, apperr.StoreUnavailable(err)
	}
	if taken {
		return CompleteResponse{}, apperr.DuplicateDisplayName()
	}

	m := domain.Member{
		ExternalID:  externalID,
		DisplayName: name,
		CardID:      tr.CardID,
		Generation:  req.Generation,
		TeamID:      req.TeamID,
		Role:        domain.RoleMember,
		IsActive:    true,
	}
	if err := s.store.CompleteRegistration(ctx, tr.ID, tr.Token, now.UTC(), &m); err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenReplaced):
			// 確認中にキオスクで再発行された
			return CompleteResponse{}, apperr.InvalidSession()
		case errors.Is(err, domain.ErrAlreadyUsed):
			return CompleteResponse{}, apperr.AlreadyUsed()
		case errors.Is(err, domain.ErrDuplicateExternalID):
			return CompleteResponse{}, apperr.DuplicateExternalID()
		case errors.Is(err, domain.ErrDuplicateDisplayName):
			return CompleteResponse{}, apperr.DuplicateDisplayName()
		case errors.Is(err, domain.ErrDuplicateCard):
			return CompleteResponse{}, apperr.AlreadyRegistered()
		case errors.Is(err, domain.ErrNotFound):
			return CompleteResponse{}, apperr.Invalid("班が見つかりません")
		}
		return CompleteResponse{}, apperr.StoreUnavailable(err)
	}

	s.log.Info("registration completed", zap.Int64("member_id", m.ID), zap.Int64("temp_id", tr.ID))
	if err := s.pub.Publish(ctx, notify.NewEvent(notify.TypeRegistrationUsed, map[string]any{
		"token":     tr.Token,
		"member_id": m.ID,
	})); err != nil {
		s.log.Warn("notify publish failed", zap.String("type", notify.TypeRegistrationUsed), zap.Error(err))
	}

	return CompleteResponse{
		OK:      true,
		Message: name + "さんの登録が完了しました。キオスクでカードをかざすと出席を記録できます",
		Member: MemberResponse{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Generation:  m.Generation,
			TeamID:      m.TeamID,
		},
	}, nil
}
