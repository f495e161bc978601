package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/events"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	"github.com/smallbiznis/cabletrack/internal/notification/domain"
	"github.com/smallbiznis/cabletrack/internal/notification/mocks"
	"github.com/smallbiznis/cabletrack/internal/notification/repository"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	phone    = "+15557654321"
	creator  = &authdomain.User{ID: 10, Username: "requester", Email: "requester@example.com", Phone: &phone}
	assignee = &authdomain.User{ID: 11, Username: "approver", Email: "approver@example.com", Phone: &phone}
)

type users map[int64]*authdomain.User

func (u users) GetByID(_ context.Context, id int64) (*authdomain.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, authdomain.ErrUserNotFound
}

func (u users) FindByUsernameOrEmail(context.Context, string, string) (*authdomain.User, error) {
	return nil, authdomain.ErrUserNotFound
}

type fixture struct {
	svc   *Service
	sms   *mocks.MockSMSSender
	email *mocks.MockEmailSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	conn, err := db.NewTest()
	require.NoError(t, err)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	sms := mocks.NewMockSMSSender(ctrl)
	email := mocks.NewMockEmailSender(ctrl)
	svc := NewService(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repository.Provide(),
		Identity:  users{creator.ID: creator, assignee.ID: assignee},
		Config:    config.Config{AppURL: "https://cable.example.com"},
		Templates: config.NewStaticNotificationConfigHolder(config.DefaultNotificationConfig()),
		Clock:     clock.NewFakeClock(time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)),
		SMS:       sms,
		Email:     email,
	})
	return &fixture{svc: svc, sms: sms, email: email}
}

func sampleTicket() ticketdomain.Ticket {
	return ticketdomain.Ticket{
		ID:            77,
		CreatedByID:   creator.ID,
		AssignedToID:  assignee.ID,
		Status:        ticketdomain.StatusPendingApproval,
		ApprovalToken: "link-token",
		Items:         []ledgerdomain.Item{{CableType: "Cat6", CableLength: "100m", Quantity: 1}},
		CreatedBy:     creator.Summary(),
	}
}

func TestOnTicketCreatedNotifiesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sms.EXPECT().
		SendSMS(gomock.Any(), phone, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, body string) error {
			assert.Contains(t, body, "Cable Request from requester:")
			assert.Contains(t, body, "https://cable.example.com/tickets/77/approve/link-token")
			return nil
		})
	f.email.EXPECT().
		SendEmail(gomock.Any(), assignee.Email, "Cable Request #77", gomock.Any()).
		Return(nil)

	require.NoError(t, f.svc.OnTicketCreated(ctx, sampleTicket()))

	rows, err := f.svc.ListByTicket(ctx, 77)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, assignee.ID, row.RecipientUserID)
		assert.Equal(t, domain.StatusSent, row.Status)
		assert.NotNil(t, row.SentAt)
	}
}

func TestDeliveryFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sms.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("carrier rejected"))
	f.email.EXPECT().SendEmail(gomock.Any(), creator.Email, "Ticket #77 Update", gomock.Any()).Return(nil)

	ticket := sampleTicket()
	ticket.Status = ticketdomain.StatusApproved
	err := f.svc.OnStatusChanged(ctx, ticket, ticketdomain.StatusApproved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier rejected")

	rows, err := f.svc.ListByTicket(ctx, 77)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byChannel := map[domain.Channel]domain.Notification{}
	for _, row := range rows {
		byChannel[row.NotificationType] = row
	}
	assert.Equal(t, domain.StatusFailed, byChannel[domain.ChannelSMS].Status)
	require.NotNil(t, byChannel[domain.ChannelSMS].ErrorMessage)
	assert.Equal(t, "carrier rejected", *byChannel[domain.ChannelSMS].ErrorMessage)
	assert.Nil(t, byChannel[domain.ChannelSMS].SentAt)
	assert.Equal(t, domain.StatusSent, byChannel[domain.ChannelEmail].Status)
	assert.Equal(t, creator.ID, byChannel[domain.ChannelEmail].RecipientUserID)
}

func TestQuietStatusSendsNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.OnStatusChanged(context.Background(), sampleTicket(), ticketdomain.StatusInProgress))
}

func TestRecipientWithoutPhoneSkipsSMS(t *testing.T) {
	f := newFixture(t)
	noPhone := &authdomain.User{ID: 12, Username: "nophone", Email: "nophone@example.com"}
	f.svc.identity = users{creator.ID: creator, noPhone.ID: noPhone}

	f.email.EXPECT().SendEmail(gomock.Any(), noPhone.Email, gomock.Any(), gomock.Any()).Return(nil)

	ticket := sampleTicket()
	ticket.AssignedToID = noPhone.ID
	require.NoError(t, f.svc.OnTicketCreated(context.Background(), ticket))
}

func TestDeleteByTicketTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sms.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.email.EXPECT().SendEmail(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	require.NoError(t, f.svc.OnTicketCreated(ctx, sampleTicket()))

	removed, err := f.svc.DeleteByTicketTx(ctx, f.svc.db, 77)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rows, err := f.svc.ListByTicket(ctx, 77)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEventsReachDispatcher(t *testing.T) {
	f := newFixture(t)

	cfg := config.Config{}
	cfg.Events.Workers = 1
	cfg.Events.QueueSize = 4
	bus := events.NewBus(events.Params{Log: zap.NewNop(), Config: cfg})
	f.svc.Register(bus)
	bus.Start()

	f.sms.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.email.EXPECT().SendEmail(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	ticket := sampleTicket()
	ticket.Status = ticketdomain.StatusFulfilled
	bus.Publish(context.Background(), events.TypeTicketStatusChanged, ticketdomain.TicketStatusChanged{
		Ticket: ticket,
		From:   ticketdomain.StatusInProgress,
		To:     ticketdomain.StatusFulfilled,
	})
	bus.Publish(context.Background(), events.TypeTicketCreated, "not a ticket")
	require.NoError(t, bus.Stop(context.Background()))
}
