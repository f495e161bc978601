package authorization

import (
	"context"
	"errors"

	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service answers coarse capability questions for a signed-in user.
// Per-ticket ownership rules live in the ticket service.
type Service interface {
	Authorize(ctx context.Context, actor *authdomain.User, object string, action string) error
}
