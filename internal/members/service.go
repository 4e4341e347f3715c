package members

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/logctx"
	"github.com/zipbob/edge/internal/notify"
	"github.com/zipbob/edge/internal/routing"
)

const testNicknameLength = 6

// Notifier accepts fire-and-forget notification events.
type Notifier interface {
	Emit(event notify.Event)
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	Email       string `json:"email"`
	NewNickname string `json:"newNickname"`
}

// JoinResult is returned by OAuth2Join.
type JoinResult struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

// WithdrawResult is returned by Withdraw.
type WithdrawResult struct {
	Email string `json:"email"`
}

// Service implements the member operations. It also resolves token subjects
// for the session engine.
type Service struct {
	repo     Repository
	cache    *Cache
	notifier Notifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the my-info cache.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier sets where welcome and goodbye events go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupIdentity returns the current identity attributes of subject.
func (s *Service) LookupIdentity(ctx context.Context, subject string) (edge.Identity, error) {
	ctx = routing.Bind(ctx, routing.Read)

	m, err := s.repo.ByEmail(ctx, subject)
	if err != nil {
		return edge.Identity{}, err
	}
	return m.Identity(), nil
}

// GetMyInfo returns the caller's email and nickname, served from the cache
// when possible.
func (s *Service) GetMyInfo(ctx context.Context, email string) (Info, error) {
	ctx = routing.Bind(ctx, routing.Read)
	log := logctx.From(ctx)

	if s.cache != nil {
		info, ok, err := s.cache.Get(ctx, email)
		if err != nil {
			log.Warn("member cache read failed", "error", err)
		} else if ok {
			return info, nil
		}
	}

	m, err := s.repo.ByEmail(ctx, email)
	if err != nil {
		return Info{}, err
	}
	info := Info{Email: m.Email, Nickname: m.Nickname}

	if s.cache != nil {
		if err := s.cache.Put(ctx, info); err != nil {
			log.Warn("member cache write failed", "error", err)
		}
	}
	return info, nil
}

// CheckNickname reports whether nickname is already taken.
func (s *Service) CheckNickname(ctx context.Context, nickname string) (bool, error) {
	ctx = routing.Bind(ctx, routing.Read)
	return s.repo.NicknameExists(ctx, nickname)
}

// Update changes the caller's nickname.
func (s *Service) Update(ctx context.Context, email, newNickname string) (UpdateResult, error) {
	ctx = routing.Bind(ctx, routing.Write)

	if err := validNickname(newNickname); err != nil {
		return UpdateResult{}, err
	}

	m, err := s.repo.ByEmail(ctx, email)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := s.ensureNicknameFree(ctx, newNickname); err != nil {
		return UpdateResult{}, err
	}
	if err := s.repo.UpdateProfile(ctx, m.ID, newNickname, m.Role); err != nil {
		return UpdateResult{}, err
	}
	s.evict(ctx, email)

	logctx.From(ctx).Info("member nickname updated", "member_id", m.ID)
	return UpdateResult{Email: email, NewNickname: newNickname}, nil
}

// OAuth2Join completes the sign-up of a guest: it assigns nickname and
// promotes the member to ROLE_USER.
func (s *Service) OAuth2Join(ctx context.Context, email, nickname string) (JoinResult, error) {
	ctx = routing.Bind(ctx, routing.Write)

	if err := validNickname(nickname); err != nil {
		return JoinResult{}, err
	}

	m, err := s.repo.ByEmail(ctx, email)
	if err != nil {
		return JoinResult{}, err
	}
	if m.Role != edge.RoleGuest {
		return JoinResult{}, edge.ErrWrongRole
	}
	if err := s.ensureNicknameFree(ctx, nickname); err != nil {
		return JoinResult{}, err
	}
	if err := s.repo.UpdateProfile(ctx, m.ID, nickname, edge.RoleUser); err != nil {
		return JoinResult{}, err
	}
	s.evict(ctx, email)

	s.emit(notify.Event{Kind: notify.KindWelcome, Email: email, Nickname: nickname, MemberID: m.ID})
	logctx.From(ctx).Info("member joined", "member_id", m.ID)

	return JoinResult{Email: email, Nickname: nickname, Role: edge.RoleUser}, nil
}

// Withdraw deletes the caller after confirming their current nickname.
func (s *Service) Withdraw(ctx context.Context, email, nickname string) (WithdrawResult, error) {
	ctx = routing.Bind(ctx, routing.Write)

	m, err := s.repo.ByEmail(ctx, email)
	if err != nil {
		return WithdrawResult{}, err
	}
	if m.Nickname != nickname {
		return WithdrawResult{}, edge.ErrNicknameMismatch
	}
	if err := s.repo.Delete(ctx, m.ID); err != nil {
		return WithdrawResult{}, err
	}
	s.evict(ctx, email)

	s.emit(notify.Event{Kind: notify.KindGoodbye, Email: email, Nickname: nickname, MemberID: m.ID})
	logctx.From(ctx).Info("member withdrew", "member_id", m.ID)

	return WithdrawResult{Email: email}, nil
}

// TestJoin registers email directly as a ROLE_USER member with a random
// nickname. It skips the OAuth2 flow and exists for test environments.
func (s *Service) TestJoin(ctx context.Context, email string) (*Member, error) {
	ctx = routing.Bind(ctx, routing.Write)

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email required", edge.ErrInvalidRequest)
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, edge.ErrDuplicateEmail
	}

	m := &Member{
		Email:    email,
		Nickname: randomNickname(),
		Role:     edge.RoleUser,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	logctx.From(ctx).Info("test member created", "member_id", m.ID)
	return m, nil
}

func (s *Service) ensureNicknameFree(ctx context.Context, nickname string) error {
	taken, err := s.repo.NicknameExists(ctx, nickname)
	if err != nil {
		return err
	}
	if taken {
		return edge.ErrDuplicateNickname
	}
	return nil
}

func (s *Service) evict(ctx context.Context, email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Evict(ctx, email); err != nil {
		logctx.From(ctx).Warn("member cache evict failed", "error", err)
	}
}

func (s *Service) emit(event notify.Event) {
	if s.notifier == nil {
		return
	}
	event.Timestamp = s.now()
	s.notifier.Emit(event)
}

func validNickname(nickname string) error {
	if utf8.RuneCountInString(strings.TrimSpace(nickname)) < MinNicknameLength {
		return fmt.Errorf("%w: nickname must have at least %d characters", edge.ErrInvalidRequest, MinNicknameLength)
	}
	return nil
}

func randomNickname() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:testNicknameLength]
}

var _ edge.MemberLookup = (*Service)(nil)
