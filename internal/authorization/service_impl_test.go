package authorization

import (
	"context"
	"testing"

	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuthorizer(t *testing.T) *ServiceImpl {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer}).(*ServiceImpl)
}

func roleLinks(s *ServiceImpl, subject string) []string {
	rules, _ := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule[1])
	}
	return out
}

func TestAuthorizeAdminCapabilities(t *testing.T) {
	svc := newTestAuthorizer(t)
	ctx := context.Background()
	admin := &authdomain.User{ID: 1, Role: authdomain.RoleAdmin}

	assert.NoError(t, svc.Authorize(ctx, admin, ObjectCableReceiving, ActionCableReceivingCreate))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectAuditLog, ActionAuditLogView))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectInventory, ActionInventoryAdjust))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectTicket, ActionTicketCreate))
}

func TestAuthorizeUserDenied(t *testing.T) {
	svc := newTestAuthorizer(t)
	ctx := context.Background()
	user := &authdomain.User{ID: 2, Role: authdomain.RoleUser}

	assert.NoError(t, svc.Authorize(ctx, user, ObjectTicket, ActionTicketCreate))
	assert.NoError(t, svc.Authorize(ctx, user, ObjectInventory, ActionInventoryView))
	assert.ErrorIs(t, svc.Authorize(ctx, user, ObjectCableReceiving, ActionCableReceivingCreate), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, user, ObjectAuditLog, ActionAuditLogView), ErrForbidden)
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc := newTestAuthorizer(t)
	ctx := context.Background()
	user := &authdomain.User{ID: 3, Role: authdomain.RoleAdmin}

	require.NoError(t, svc.Authorize(ctx, user, ObjectAuditLog, ActionAuditLogView))
	assert.Equal(t, []string{"role:admin"}, roleLinks(svc, "user:3"))

	user.Role = authdomain.RoleUser
	assert.ErrorIs(t, svc.Authorize(ctx, user, ObjectAuditLog, ActionAuditLogView), ErrForbidden)
	assert.Equal(t, []string{"role:user"}, roleLinks(svc, "user:3"))
}

func TestAuthorizeRejectsBadInput(t *testing.T) {
	svc := newTestAuthorizer(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, nil, ObjectTicket, ActionTicketView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, &authdomain.User{ID: 1}, " ", ActionTicketView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, &authdomain.User{ID: 1}, ObjectTicket, ""), ErrInvalidAction)
}
