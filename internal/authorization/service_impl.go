package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTicket         = "ticket"
	ObjectCableReceiving = "cable_receiving"
	ObjectInventory      = "inventory"
	ObjectAuditLog       = "audit_log"
	ObjectUser           = "user"
	ObjectDashboard      = "dashboard"
)

const (
	ActionTicketCreate = "ticket.create"
	ActionTicketView   = "ticket.view"

	ActionCableReceivingCreate = "cable_receiving.create"
	ActionCableReceivingView   = "cable_receiving.view"

	ActionInventoryView   = "inventory.view"
	ActionInventoryAdjust = "inventory.adjust"

	ActionAuditLogView = "audit_log.view"

	ActionUserList = "user.list"

	ActionDashboardView = "dashboard.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor *authdomain.User, object string, action string) error {
	if actor == nil || actor.ID <= 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%d", actor.ID)
	roleName := fmt.Sprintf("role:%s", authdomain.ParseRole(string(actor.Role)))
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("capability denied",
			zap.Int64("user_id", actor.ID),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actor.ID, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per user so a role change in
// the identity store takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, userID int64, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    strconv.FormatInt(userID, 10),
		Action:     "authorization.denied",
		TargetType: "authorization",
		TargetID:   "capability",
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
	if err != nil {
		s.log.Warn("failed to audit denied capability", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Every signed-in user
		{"role:user", ObjectTicket, ActionTicketCreate},
		{"role:user", ObjectTicket, ActionTicketView},
		{"role:user", ObjectCableReceiving, ActionCableReceivingView},
		{"role:user", ObjectInventory, ActionInventoryView},
		{"role:user", ObjectDashboard, ActionDashboardView},
		{"role:user", ObjectUser, ActionUserList},

		// Admin
		{"role:admin", ObjectTicket, ActionTicketCreate},
		{"role:admin", ObjectTicket, ActionTicketView},
		{"role:admin", ObjectCableReceiving, ActionCableReceivingView},
		{"role:admin", ObjectCableReceiving, ActionCableReceivingCreate},
		{"role:admin", ObjectInventory, ActionInventoryView},
		{"role:admin", ObjectInventory, ActionInventoryAdjust},
		{"role:admin", ObjectDashboard, ActionDashboardView},
		{"role:admin", ObjectUser, ActionUserList},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
