package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/auth/password"
	"github.com/smallbiznis/cabletrack/internal/auth/token"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Tokens *token.Service
	Clock  clock.Clock
	Config config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	tokens *token.Service
	clock  clock.Clock

	allowSelfRole bool
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("auth.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		tokens:        p.Tokens,
		clock:         clk,
		allowSelfRole: p.Config.AllowSelfRole,
	}
}

// Register creates a user, or returns the existing one when the username
// or email is already taken.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.repo.FindByUsernameOrEmail(ctx, s.db, username, email)
	switch {
	case err == nil:
		return s.issue(existing, false)
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	if username == "" {
		return nil, domain.ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, domain.ErrInvalidEmail
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidPassword
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	role := domain.RoleUser
	if s.allowSelfRole {
		role = domain.ParseRole(req.Role)
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           s.genID.Generate().Int64(),
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		user.Phone = &phone
	}

	if err := s.repo.Create(ctx, s.db, user); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))

	return s.issue(user, true)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	email := ""
	if strings.Contains(identifier, "@") {
		email = identifier
	}
	user, err := s.repo.FindByUsernameOrEmail(ctx, s.db, identifier, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	signed, exp, err := s.tokens.Generate(user)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{User: user, AccessToken: signed, ExpiresAt: exp}, nil
}

// Authenticate resolves a bearer token to its user. Tokens for users that
// no longer exist are rejected.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidToken
	}
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, s.db, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	return s.repo.FindByUsernameOrEmail(ctx, s.db, username, email)
}

func (s *Service) List(ctx context.Context) ([]*domain.User, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) issue(user *domain.User, created bool) (*domain.RegisterResult, error) {
	signed, exp, err := s.tokens.Generate(user)
	if err != nil {
		return nil, err
	}
	return &domain.RegisterResult{User: user, AccessToken: signed, ExpiresAt: exp, Created: created}, nil
}
