package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/events"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/cabletrack/internal/observability/metrics"
	"github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	approvalTokenBytes     = 32
	defaultRejectionReason = "No reason provided"

	// guardedWriteAttempts bounds re-reads when a guarded archive or restore
	// finds the row changed underneath it.
	guardedWriteAttempts = 3
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	Ledger        ledgerdomain.Service
	Identity      authdomain.IdentityLookup
	Clock         clock.Clock
	Timeout       db.StatementTimeout       `optional:"true"`
	Publisher     events.Publisher          `optional:"true"`
	Notifications domain.NotificationPurger `optional:"true"`
	Audit         auditdomain.Service       `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	ledger        ledgerdomain.Service
	identity      authdomain.IdentityLookup
	clock         clock.Clock
	timeout       db.StatementTimeout
	publisher     events.Publisher
	notifications domain.NotificationPurger
	audit         auditdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("ticket.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		ledger:        p.Ledger,
		identity:      p.Identity,
		clock:         clk,
		timeout:       p.Timeout,
		publisher:     p.Publisher,
		notifications: p.Notifications,
		audit:         p.Audit,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, actor *authdomain.User, req domain.CreateRequest) (*domain.Ticket, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	if req.AssignedToID <= 0 {
		return nil, domain.ErrInvalidAssignee
	}

	items, err := ledgerdomain.NormalizeItems(req.Items)
	if err != nil {
		return nil, err
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	assignee, err := s.identity.GetByID(ctx, req.AssignedToID)
	if errors.Is(err, authdomain.ErrUserNotFound) || (err == nil && assignee == nil) {
		return nil, domain.ErrInvalidAssignee
	}
	if err != nil {
		return nil, err
	}

	token, err := newApprovalToken()
	if err != nil {
		s.log.Error("failed to generate approval token", zap.Error(err))
		return nil, domain.ErrTokenGeneration
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		ID:            s.genID.Generate().Int64(),
		CreatedByID:   actor.ID,
		AssignedToID:  assignee.ID,
		Status:        domain.StatusPendingApproval,
		Items:         items,
		Location:      optionalText(req.Location),
		Notes:         optionalText(req.Notes),
		Priority:      priority,
		ApprovalToken: token,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()
	if err := s.repo.Insert(dbCtx, s.db, ticket); err != nil {
		return nil, err
	}

	ticket.CreatedBy = actor.Summary()
	ticket.AssignedTo = assignee.Summary()

	s.log.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("created_by_id", ticket.CreatedByID),
		zap.Int64("assigned_to_id", ticket.AssignedToID),
		zap.Int("item_count", len(ticket.Items)),
	)
	s.obsMetrics.RecordTicketTransition(ctx, "", string(ticket.Status))
	s.publish(ctx, events.TypeTicketCreated, domain.TicketCreated{Ticket: *ticket})
	return ticket, nil
}

func (s *Service) Get(ctx context.Context, id int64, includeDeleted bool) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.IsDeleted() && !includeDeleted {
		return nil, domain.ErrDeleted
	}
	s.decorate(ctx, []*domain.Ticket{ticket})
	return ticket, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Ticket, error) {
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	switch {
	case filter.Status == "":
	case filter.Status == string(domain.StatusDeleted):
		filter.IncludeDeleted = true
	default:
		if _, err := domain.ParseStatus(filter.Status); err != nil {
			return nil, err
		}
	}

	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	items, err := s.repo.List(dbCtx, s.db, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Ticket{}
	}

	refs := make([]*domain.Ticket, 0, len(items))
	for i := range items {
		refs = append(refs, &items[i])
	}
	s.decorate(ctx, refs)
	return items, nil
}

// Update applies a status change and/or rejection reason from an
// authenticated actor. Checks run in order: existence, archive state,
// status validity, workflow, then actor permissions.
func (s *Service) Update(ctx context.Context, actor *authdomain.User, id int64, req domain.UpdateRequest) (*domain.Ticket, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}

	var (
		ticket *domain.Ticket
		change *statusChange
	)

	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockActive(dbCtx, tx, id)
		if err != nil {
			return err
		}
		ticket = current

		fields := map[string]any{}
		target := ticket.Status
		if req.Status != nil {
			next, err := domain.ParseStatus(*req.Status)
			if err != nil {
				return err
			}
			if !domain.CanTransition(ticket.Status, next) {
				return domain.ErrInvalidTransition
			}
			if !canActOn(actor, ticket) {
				if next.IsApprovalState() {
					return domain.ErrForbiddenApproval
				}
				if next.IsWorkState() {
					return domain.ErrForbiddenWork
				}
			}
			target = next
		}
		if req.RejectionReason != nil {
			if !canActOn(actor, ticket) {
				return domain.ErrForbiddenRejection
			}
			reason := optionalText(req.RejectionReason)
			fields["rejection_reason"] = reason
			ticket.RejectionReason = reason
		}

		if req.Status == nil && len(fields) == 0 {
			return nil
		}
		change, err = s.applyStatus(dbCtx, tx, ticket, target, fields)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx, ticket, change)
	s.decorate(ctx, []*domain.Ticket{ticket})
	return ticket, nil
}

func (s *Service) ApproveViaToken(ctx context.Context, id int64, token string) (*domain.TokenResult, error) {
	return s.resolveViaToken(ctx, id, token, domain.StatusApproved, nil)
}

func (s *Service) RejectViaToken(ctx context.Context, id int64, token string, reason string) (*domain.TokenResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectionReason
	}
	return s.resolveViaToken(ctx, id, token, domain.StatusRejected, &reason)
}

// resolveViaToken moves a pending ticket on behalf of whoever holds its
// approval link. Holding the token stands in for actor checks.
func (s *Service) resolveViaToken(ctx context.Context, id int64, token string, target domain.Status, reason *string) (*domain.TokenResult, error) {
	var (
		ticket *domain.Ticket
		change *statusChange
		done   bool
	)

	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(dbCtx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if subtle.ConstantTimeCompare([]byte(current.ApprovalToken), []byte(strings.TrimSpace(token))) != 1 {
			return domain.ErrInvalidToken
		}
		if current.IsDeleted() {
			return domain.ErrDeleted
		}
		ticket = current
		if ticket.Status != domain.StatusPendingApproval {
			done = true
			return nil
		}

		fields := map[string]any{}
		if reason != nil {
			fields["rejection_reason"] = *reason
			ticket.RejectionReason = reason
		}
		change, err = s.applyStatus(dbCtx, tx, ticket, target, fields)
		return err
	})
	if err != nil {
		return nil, err
	}

	if done {
		s.decorate(ctx, []*domain.Ticket{ticket})
		return &domain.TokenResult{Ticket: ticket, AlreadyProcessed: true}, nil
	}

	action := auditdomain.ActionTicketApproved
	if target == domain.StatusRejected {
		action = auditdomain.ActionTicketRejected
	}
	s.recordAudit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeToken,
		Action:     action,
		TargetType: "ticket",
		TargetID:   strconv.FormatInt(ticket.ID, 10),
	})
	s.afterChange(ctx, ticket, change)
	s.decorate(ctx, []*domain.Ticket{ticket})
	return &domain.TokenResult{Ticket: ticket}, nil
}

func (s *Service) SoftDelete(ctx context.Context, actor *authdomain.User, id int64) (*domain.Ticket, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}

	now := s.clock.Now()
	var ticket *domain.Ticket
	var previous domain.Status

	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()
	err := s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < guardedWriteAttempts; attempt++ {
			current, err := s.lock(dbCtx, tx, id)
			if err != nil {
				return err
			}
			if !canManage(actor, current) {
				return domain.ErrForbiddenDelete
			}
			if current.IsDeleted() {
				return domain.ErrAlreadyDeleted
			}

			meta := domain.SoftDelete{DeletedAt: now, DeletedByID: actor.ID, PreviousStatus: current.Status}
			changed, err := s.repo.MarkDeleted(dbCtx, tx, current.ID, meta, now)
			if err != nil {
				return err
			}
			if changed {
				ticket, previous = current, current.Status
				return nil
			}
		}
		return domain.ErrConcurrentUpdate
	})
	if err != nil {
		return nil, err
	}

	deletedBy := actor.ID
	ticket.Status = domain.StatusDeleted
	ticket.DeletedAt = &now
	ticket.DeletedByID = &deletedBy
	ticket.DeletedPreviousStatus = &previous
	ticket.UpdatedAt = now

	s.log.Info("ticket archived", zap.Int64("ticket_id", ticket.ID), zap.Int64("actor_id", actor.ID))
	s.obsMetrics.RecordTicketTransition(ctx, string(previous), string(domain.StatusDeleted))
	s.recordAudit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    strconv.FormatInt(actor.ID, 10),
		Action:     auditdomain.ActionTicketArchived,
		TargetType: "ticket",
		TargetID:   strconv.FormatInt(ticket.ID, 10),
		Metadata:   map[string]any{"previous_status": string(previous)},
	})
	return ticket, nil
}

func (s *Service) Restore(ctx context.Context, actor *authdomain.User, id int64) (*domain.Ticket, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}

	now := s.clock.Now()
	var ticket *domain.Ticket
	var restored domain.Status

	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()
	err := s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < guardedWriteAttempts; attempt++ {
			current, err := s.lock(dbCtx, tx, id)
			if err != nil {
				return err
			}
			if !canManage(actor, current) {
				return domain.ErrForbiddenRestore
			}
			if !current.IsDeleted() {
				return domain.ErrNotDeleted
			}

			target := domain.StatusPendingApproval
			if prev := current.DeletedPreviousStatus; prev != nil && prev.Valid() {
				target = *prev
			}
			changed, err := s.repo.Restore(dbCtx, tx, current.ID, current.DeletedPreviousStatus, target, now)
			if err != nil {
				return err
			}
			if changed {
				ticket, restored = current, target
				return nil
			}
		}
		return domain.ErrConcurrentUpdate
	})
	if err != nil {
		return nil, err
	}

	ticket.Status = restored
	ticket.DeletedAt = nil
	ticket.DeletedByID = nil
	ticket.DeletedPreviousStatus = nil
	ticket.UpdatedAt = now

	s.log.Info("ticket restored",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("actor_id", actor.ID),
		zap.String("status", string(restored)),
	)
	s.obsMetrics.RecordTicketTransition(ctx, string(domain.StatusDeleted), string(restored))
	s.recordAudit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    strconv.FormatInt(actor.ID, 10),
		Action:     auditdomain.ActionTicketRestored,
		TargetType: "ticket",
		TargetID:   strconv.FormatInt(ticket.ID, 10),
		Metadata:   map[string]any{"status": string(restored)},
	})
	s.decorate(ctx, []*domain.Ticket{ticket})
	return ticket, nil
}

// Purge removes an archived ticket and its notifications. The archived
// check is repeated under the row lock and again by the delete itself, so a
// restore that lands first makes the whole purge roll back.
func (s *Service) Purge(ctx context.Context, actor *authdomain.User, id int64) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}

	var removed int64
	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()
	err := s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lock(dbCtx, tx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return domain.ErrForbiddenPurge
		}
		if !current.IsDeleted() {
			return domain.ErrNotArchived
		}

		if s.notifications != nil {
			n, err := s.notifications.DeleteByTicketTx(dbCtx, tx, current.ID)
			if err != nil {
				return err
			}
			removed = n
		}
		deleted, err := s.repo.Delete(dbCtx, tx, current.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrNotArchived
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("ticket purged",
		zap.Int64("ticket_id", id),
		zap.Int64("actor_id", actor.ID),
		zap.Int64("notifications_removed", removed),
	)
	s.recordAudit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    strconv.FormatInt(actor.ID, 10),
		Action:     auditdomain.ActionTicketPurged,
		TargetType: "ticket",
		TargetID:   strconv.FormatInt(id, 10),
		Metadata:   map[string]any{"notifications_removed": removed},
	})
	return nil
}

func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	rows, err := s.repo.CountByStatus(dbCtx, s.db)
	if err != nil {
		return nil, err
	}

	stats := &domain.Stats{}
	for _, row := range rows {
		switch row.Status {
		case domain.StatusDeleted:
			stats.Archived += row.Count
			continue
		case domain.StatusPendingApproval:
			stats.PendingApproval += row.Count
		case domain.StatusApproved:
			stats.Approved += row.Count
		case domain.StatusRejected:
			stats.Rejected += row.Count
		case domain.StatusInProgress:
			stats.InProgress += row.Count
		case domain.StatusFulfilled:
			stats.Fulfilled += row.Count
		case domain.StatusClosed:
			stats.Closed += row.Count
		}
		stats.TotalTickets += row.Count
	}
	return stats, nil
}

type statusChange struct {
	from     domain.Status
	to       domain.Status
	consumed []ledgerdomain.Movement
}

// applyStatus writes the update inside tx. Entering fulfilled appends the
// consumption rows in the same transaction, so a ledger failure rolls the
// status back with it.
func (s *Service) applyStatus(ctx context.Context, tx *gorm.DB, ticket *domain.Ticket, target domain.Status, fields map[string]any) (*statusChange, error) {
	now := s.clock.Now()
	from := ticket.Status

	fields["status"] = target
	fields["updated_at"] = now
	if err := s.repo.UpdateFields(ctx, tx, ticket.ID, fields); err != nil {
		return nil, err
	}
	ticket.Status = target
	ticket.UpdatedAt = now

	if from == target {
		return nil, nil
	}

	change := &statusChange{from: from, to: target}
	if target == domain.StatusFulfilled {
		consumed, err := s.consumeStock(ctx, tx, ticket)
		if err != nil {
			s.log.Error("ledger write failed, rolling back fulfillment",
				zap.Int64("ticket_id", ticket.ID),
				zap.String("previous_status", string(from)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", domain.ErrLedgerWriteFailed, err)
		}
		change.consumed = consumed
	}
	return change, nil
}

func (s *Service) consumeStock(ctx context.Context, tx *gorm.DB, ticket *domain.Ticket) ([]ledgerdomain.Movement, error) {
	exists, err := s.ledger.ExistsForSourceTx(ctx, tx, ledgerdomain.SourceTypeTicketFulfillment, ticket.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	assignee := ticket.AssignedToID
	notes := fmt.Sprintf("Ticket #%d fulfilled", ticket.ID)
	batch := make([]ledgerdomain.MovementInput, 0, len(ticket.Items))
	for _, item := range ticket.Items {
		if item.Quantity <= 0 || strings.TrimSpace(item.CableType) == "" || strings.TrimSpace(item.CableLength) == "" {
			continue
		}
		batch = append(batch, ledgerdomain.MovementInput{
			MovementType:  ledgerdomain.MovementTypeConsumption,
			SourceType:    ledgerdomain.SourceTypeTicketFulfillment,
			SourceID:      ticket.ID,
			ActorUserID:   &assignee,
			CableType:     item.CableType,
			CableLength:   item.CableLength,
			QuantityDelta: -item.Quantity,
			Notes:         notes,
		})
	}
	if len(batch) == 0 {
		return nil, nil
	}

	res, err := s.ledger.RecordTx(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	return res.Movements, nil
}

// afterChange runs the post-commit side effects of a status change.
func (s *Service) afterChange(ctx context.Context, ticket *domain.Ticket, change *statusChange) {
	if change == nil {
		return
	}

	s.log.Info("ticket status changed",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("from_status", string(change.from)),
		zap.String("to_status", string(change.to)),
	)
	s.obsMetrics.RecordTicketTransition(ctx, string(change.from), string(change.to))
	s.obsMetrics.RecordLedgerMovements(ctx, ledgerdomain.SourceTypeTicketFulfillment, string(ledgerdomain.MovementTypeConsumption), len(change.consumed))

	if change.to.Notifies() {
		s.publish(ctx, events.TypeTicketStatusChanged, domain.TicketStatusChanged{
			Ticket: *ticket,
			From:   change.from,
			To:     change.to,
		})
	}
}

func (s *Service) load(ctx context.Context, id int64) (*domain.Ticket, error) {
	if id <= 0 {
		return nil, domain.ErrNotFound
	}
	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	ticket, err := s.repo.FindByID(dbCtx, s.db, id)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, domain.ErrNotFound
	}
	return ticket, nil
}

// lock reads the ticket under a row lock, archived or not.
func (s *Service) lock(ctx context.Context, tx *gorm.DB, id int64) (*domain.Ticket, error) {
	if id <= 0 {
		return nil, domain.ErrNotFound
	}
	ticket, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, domain.ErrNotFound
	}
	return ticket, nil
}

func (s *Service) lockActive(ctx context.Context, tx *gorm.DB, id int64) (*domain.Ticket, error) {
	ticket, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, domain.ErrNotFound
	}
	if ticket.IsDeleted() {
		return nil, domain.ErrDeleted
	}
	return ticket, nil
}

// decorate attaches creator and assignee summaries. Lookup failures leave
// the summary empty rather than failing the read.
func (s *Service) decorate(ctx context.Context, tickets []*domain.Ticket) {
	cache := map[int64]*authdomain.Summary{}
	lookup := func(id int64) *authdomain.Summary {
		if summary, ok := cache[id]; ok {
			return summary
		}
		user, err := s.identity.GetByID(ctx, id)
		if err != nil && !errors.Is(err, authdomain.ErrUserNotFound) {
			s.log.Warn("failed to load ticket user", zap.Int64("user_id", id), zap.Error(err))
		}
		summary := user.Summary()
		cache[id] = summary
		return summary
	}

	for _, t := range tickets {
		if t.CreatedBy == nil {
			t.CreatedBy = lookup(t.CreatedByID)
		}
		if t.AssignedTo == nil {
			t.AssignedTo = lookup(t.AssignedToID)
		}
	}
}

func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, eventType, payload)
}

func (s *Service) recordAudit(ctx context.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, entry)
}

// canActOn covers approval states, work states and rejection reasons.
func canActOn(actor *authdomain.User, ticket *domain.Ticket) bool {
	return actor.IsAdmin() || actor.ID == ticket.AssignedToID
}

// canManage covers archive and restore.
func canManage(actor *authdomain.User, ticket *domain.Ticket) bool {
	return actor.IsAdmin() || actor.ID == ticket.CreatedByID
}

func newApprovalToken() (string, error) {
	buf := make([]byte, approvalTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func optionalText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
