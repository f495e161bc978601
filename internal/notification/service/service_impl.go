package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabletrack/internal/audit/masking"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/events"
	"github.com/smallbiznis/cabletrack/internal/notification/domain"
	"github.com/smallbiznis/cabletrack/internal/notification/render"
	obsmetrics "github.com/smallbiznis/cabletrack/internal/observability/metrics"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errUnexpectedPayload = errors.New("unexpected_event_payload")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Identity   authdomain.IdentityLookup
	Config     config.Config
	Templates  *config.NotificationConfigHolder
	Clock      clock.Clock         `optional:"true"`
	SMS        domain.SMSSender    `optional:"true"`
	Email      domain.EmailSender  `optional:"true"`
	Timeout    db.StatementTimeout `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service dispatches ticket notifications and keeps their delivery log.
// It runs on event workers after the ticket transaction has committed, so
// nothing here can affect the ticket.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	identity   authdomain.IdentityLookup
	appURL     string
	templates  *config.NotificationConfigHolder
	clock      clock.Clock
	sms        domain.SMSSender
	email      domain.EmailSender
	timeout    db.StatementTimeout
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("notification.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		identity:   p.Identity,
		appURL:     p.Config.AppURL,
		templates:  p.Templates,
		clock:      clk,
		sms:        p.SMS,
		email:      p.Email,
		timeout:    p.Timeout,
		obsMetrics: p.ObsMetrics,
	}
}

// Register subscribes the dispatcher to ticket events.
func (s *Service) Register(sub events.Subscriber) {
	sub.Subscribe(events.TypeTicketCreated, s.handleCreated)
	sub.Subscribe(events.TypeTicketStatusChanged, s.handleStatusChanged)
}

func (s *Service) handleCreated(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(ticketdomain.TicketCreated)
	if !ok {
		return errUnexpectedPayload
	}
	return s.OnTicketCreated(ctx, payload.Ticket)
}

func (s *Service) handleStatusChanged(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(ticketdomain.TicketStatusChanged)
	if !ok {
		return errUnexpectedPayload
	}
	return s.OnStatusChanged(ctx, payload.Ticket, payload.To)
}

// OnTicketCreated asks the assignee to approve or reject the request.
func (s *Service) OnTicketCreated(ctx context.Context, ticket ticketdomain.Ticket) error {
	assignee, err := s.identity.GetByID(ctx, ticket.AssignedToID)
	if err != nil {
		return fmt.Errorf("load assignee: %w", err)
	}

	creatorName := ""
	if ticket.CreatedBy != nil {
		creatorName = ticket.CreatedBy.Username
	} else if creator, err := s.identity.GetByID(ctx, ticket.CreatedByID); err == nil {
		creatorName = creator.Username
	}

	msg, err := render.Render(s.templates.Get().TicketCreated, render.NewCreatedData(s.appURL, ticket, creatorName))
	if err != nil {
		return err
	}
	return s.deliver(ctx, ticket.ID, assignee, msg)
}

// OnStatusChanged tells the creator about approval, rejection or
// fulfillment. Other statuses are ignored.
func (s *Service) OnStatusChanged(ctx context.Context, ticket ticketdomain.Ticket, status ticketdomain.Status) error {
	data, ok := render.NewStatusData(s.appURL, ticket, status)
	if !ok {
		return nil
	}

	creator, err := s.identity.GetByID(ctx, ticket.CreatedByID)
	if err != nil {
		return fmt.Errorf("load creator: %w", err)
	}

	msg, err := render.Render(s.templates.Get().StatusChanged, data)
	if err != nil {
		return err
	}
	return s.deliver(ctx, ticket.ID, creator, msg)
}

func (s *Service) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Notification, error) {
	ctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	items, err := s.repo.ListByTicket(ctx, s.db, ticketID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

func (s *Service) DeleteByTicketTx(ctx context.Context, tx *gorm.DB, ticketID int64) (int64, error) {
	return s.repo.DeleteByTicket(ctx, tx, ticketID)
}

// deliver sends on every channel that is configured, rendered and
// addressable, and records each attempt. Skipped channels leave no row.
func (s *Service) deliver(ctx context.Context, ticketID int64, recipient *authdomain.User, msg render.Message) error {
	var errs []error

	phone := ""
	if recipient.Phone != nil {
		phone = strings.TrimSpace(*recipient.Phone)
	}
	if s.sms != nil && msg.SMS != "" && phone != "" {
		err := s.sms.SendSMS(ctx, phone, msg.SMS)
		s.record(ctx, ticketID, recipient.ID, domain.ChannelSMS, masking.MaskContact(phone), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}

	email := strings.TrimSpace(recipient.Email)
	if s.email != nil && msg.EmailHTML != "" && email != "" {
		err := s.email.SendEmail(ctx, email, msg.Subject, msg.EmailHTML)
		s.record(ctx, ticketID, recipient.ID, domain.ChannelEmail, masking.MaskContact(email), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *Service) record(ctx context.Context, ticketID, recipientID int64, channel domain.Channel, maskedTo string, sendErr error) {
	now := s.clock.Now()
	row := &domain.Notification{
		ID:               s.genID.Generate().Int64(),
		TicketID:         ticketID,
		RecipientUserID:  recipientID,
		NotificationType: channel,
		Status:           domain.StatusSent,
		CreatedAt:        now,
	}
	if sendErr != nil {
		msg := sendErr.Error()
		row.Status = domain.StatusFailed
		row.ErrorMessage = &msg
		s.log.Warn("notification failed",
			zap.Int64("ticket_id", ticketID),
			zap.String("channel", string(channel)),
			zap.String("to", maskedTo),
			zap.Error(sendErr),
		)
	} else {
		row.SentAt = &now
		s.log.Info("notification sent",
			zap.Int64("ticket_id", ticketID),
			zap.String("channel", string(channel)),
			zap.String("to", maskedTo),
		)
	}
	s.obsMetrics.RecordNotification(ctx, string(channel), string(row.Status))

	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()
	if err := s.repo.Insert(dbCtx, s.db, row); err != nil {
		s.log.Warn("failed to record notification", zap.Int64("ticket_id", ticketID), zap.Error(err))
	}
}
