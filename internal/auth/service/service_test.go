package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/auth/repository"
	"github.com/smallbiznis/cabletrack/internal/auth/token"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, allowSelfRole bool) authdomain.Service {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	cfg := config.Config{AuthTokenSecret: "test-secret", AuthTokenTTL: time.Hour, AllowSelfRole: allowSelfRole}
	clk := clock.NewFakeClock(time.Now())
	tokens, err := token.NewService(cfg, clk)
	require.NoError(t, err)

	return New(Params{
		DB:     dbConn,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Tokens: tokens,
		Clock:  clk,
		Config: cfg,
	})
}

func TestRegisterCreatesUserWithToken(t *testing.T) {
	svc := newTestService(t, false)

	res, err := svc.Register(context.Background(), authdomain.RegisterRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct-password",
		Phone:    "+15550001",
		Role:     "admin",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, authdomain.RoleUser, res.User.Role, "self assigned role must be ignored")

	user, err := svc.Authenticate(context.Background(), res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	first, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, authdomain.RoleAdmin, first.User.Role)

	again, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "someone-else", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.User.ID, again.User.ID)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Register(ctx, authdomain.RegisterRequest{Email: "x@example.com", Password: "pw"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidUsername)

	_, err = svc.Register(ctx, authdomain.RegisterRequest{Username: "x", Email: "not-an-email", Password: "pw"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidEmail)

	_, err = svc.Register(ctx, authdomain.RegisterRequest{Username: "x", Email: "x@example.com"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidPassword)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "correct-password"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Username: "carol", Password: "wrong-password"})
	if !errors.Is(err, authdomain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	res, err := svc.Login(ctx, authdomain.LoginRequest{Username: "carol@example.com", Password: "correct-password"})
	require.NoError(t, err)
	assert.Equal(t, "carol", res.User.Username)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc := newTestService(t, false)

	_, err := svc.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)

	_, err = svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestGetByIDNotFound(t *testing.T) {
	svc := newTestService(t, false)

	_, err := svc.GetByID(context.Background(), 12345)
	assert.ErrorIs(t, err, authdomain.ErrUserNotFound)
}
