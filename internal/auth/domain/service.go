package domain

import (
	"context"
	"time"
)

// IdentityLookup is the read side of the identity store used by the ticket
// and receiving services.
type IdentityLookup interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*User, error)
}

type Service interface {
	IdentityLookup
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken string) (*User, error)
	List(ctx context.Context) ([]*User, error)
}

type RegisterRequest struct {
	Username string
	Email    string
	Password string
	Phone    string
	Role     string
}

type RegisterResult struct {
	User        *User
	AccessToken string
	ExpiresAt   time.Time
	// Created is false when an existing user with the same username or
	// email was returned instead.
	Created bool
}

type LoginRequest struct {
	// Username accepts either a username or an email address.
	Username string
	Password string
}

type LoginResult struct {
	User        *User
	AccessToken string
	ExpiresAt   time.Time
}
