package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/events"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/cabletrack/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/cabletrack/internal/ledger/service"
	"github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"github.com/smallbiznis/cabletrack/internal/ticket/repository"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	admin    = &authdomain.User{ID: 1, Username: "admin", Email: "admin@example.com", Role: authdomain.RoleAdmin}
	creator  = &authdomain.User{ID: 2, Username: "requester", Email: "requester@example.com", Role: authdomain.RoleUser}
	assignee = &authdomain.User{ID: 3, Username: "approver", Email: "approver@example.com", Role: authdomain.RoleUser}
	outsider = &authdomain.User{ID: 4, Username: "outsider", Email: "outsider@example.com", Role: authdomain.RoleUser}
)

type fakeIdentity struct {
	users map[int64]*authdomain.User
}

func (f *fakeIdentity) GetByID(_ context.Context, id int64) (*authdomain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, authdomain.ErrUserNotFound
}

func (f *fakeIdentity) FindByUsernameOrEmail(_ context.Context, username, email string) (*authdomain.User, error) {
	for _, u := range f.users {
		if u.Username == username || u.Email == email {
			return u, nil
		}
	}
	return nil, authdomain.ErrUserNotFound
}

type recordedEvent struct {
	eventType string
	payload   any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ context.Context, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{eventType: eventType, payload: payload})
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.eventType)
	}
	return out
}

type sqlPurger struct{}

func (sqlPurger) DeleteByTicketTx(ctx context.Context, tx *gorm.DB, ticketID int64) (int64, error) {
	res := tx.WithContext(ctx).Exec("DELETE FROM notifications WHERE ticket_id = ?", ticketID)
	return res.RowsAffected, res.Error
}

// failingLedger reports no prior consumption and then fails the append.
type failingLedger struct {
	ledgerdomain.Service
}

func (failingLedger) ExistsForSourceTx(context.Context, *gorm.DB, string, int64) (bool, error) {
	return false, nil
}

func (failingLedger) RecordTx(context.Context, *gorm.DB, []ledgerdomain.MovementInput) (*ledgerdomain.RecordResult, error) {
	return nil, errors.New("disk full")
}

type harness struct {
	svc    domain.Service
	ledger ledgerdomain.Service
	db     *gorm.DB
	events *recorder
	clock  *clock.FakeClock
}

// racingRepo runs interleave on the caller's transaction right before the
// guarded write named by op, simulating a writer that commits between the
// read and the write.
type racingRepo struct {
	domain.Repository
	op         string
	times      int // negative interleaves on every call
	interleave func(tx *gorm.DB, id int64) error
}

func (r *racingRepo) race(op string, tx *gorm.DB, id int64) error {
	if op != r.op || r.times == 0 {
		return nil
	}
	r.times--
	return r.interleave(tx, id)
}

func (r *racingRepo) MarkDeleted(ctx context.Context, db *gorm.DB, id int64, meta domain.SoftDelete, now time.Time) (bool, error) {
	if err := r.race("archive", db, id); err != nil {
		return false, err
	}
	return r.Repository.MarkDeleted(ctx, db, id, meta, now)
}

func (r *racingRepo) Restore(ctx context.Context, db *gorm.DB, id int64, from *domain.Status, status domain.Status, now time.Time) (bool, error) {
	if err := r.race("restore", db, id); err != nil {
		return false, err
	}
	return r.Repository.Restore(ctx, db, id, from, status, now)
}

func (r *racingRepo) Delete(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	if err := r.race("purge", db, id); err != nil {
		return false, err
	}
	return r.Repository.Delete(ctx, db, id)
}

func newHarness(t *testing.T, ledgerOverride ledgerdomain.Service) *harness {
	t.Helper()
	return newHarnessWithRepo(t, ledgerOverride, repository.Provide())
}

func newHarnessWithRepo(t *testing.T, ledgerOverride ledgerdomain.Service, repo domain.Repository) *harness {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC))

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepo.Provide(),
		Clock: clk,
	})
	if ledgerOverride != nil {
		ledger = ledgerOverride
	}

	rec := &recorder{}
	svc := NewService(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repo,
		Ledger: ledger,
		Identity: &fakeIdentity{users: map[int64]*authdomain.User{
			admin.ID: admin, creator.ID: creator, assignee.ID: assignee, outsider.ID: outsider,
		}},
		Clock:         clk,
		Publisher:     rec,
		Notifications: sqlPurger{},
	})
	return &harness{svc: svc, ledger: ledger, db: conn, events: rec, clock: clk}
}

func cat6Request() domain.CreateRequest {
	return domain.CreateRequest{
		AssignedToID: assignee.ID,
		Items:        []ledgerdomain.ItemInput{{CableType: "Cat6", CableLength: "100m", Quantity: "1"}},
	}
}

func (h *harness) create(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := h.svc.Create(context.Background(), creator, cat6Request())
	require.NoError(t, err)
	return ticket
}

func (h *harness) patch(id int64, actor *authdomain.User, status string) (*domain.Ticket, error) {
	return h.svc.Update(context.Background(), actor, id, domain.UpdateRequest{Status: &status})
}

func (h *harness) consumption(t *testing.T, ticketID int64) []ledgerdomain.Movement {
	t.Helper()
	movements, err := h.ledger.List(context.Background(), ledgerdomain.ListFilter{
		SourceType: ledgerdomain.SourceTypeTicketFulfillment,
		SourceID:   &ticketID,
	})
	require.NoError(t, err)
	return movements
}

func TestCreateTicket(t *testing.T) {
	h := newHarness(t, nil)

	location := "  Rack 4 "
	ticket, err := h.svc.Create(context.Background(), creator, domain.CreateRequest{
		AssignedToID: assignee.ID,
		Items:        []ledgerdomain.ItemInput{{CableType: "Cat6", CableLength: "100m", Quantity: "3"}},
		Location:     &location,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPendingApproval, ticket.Status)
	assert.Equal(t, domain.PriorityMedium, ticket.Priority)
	assert.Len(t, ticket.ApprovalToken, 43)
	require.NotNil(t, ticket.Location)
	assert.Equal(t, "Rack 4", *ticket.Location)
	assert.Equal(t, "requester", ticket.CreatedBy.Username)
	assert.Equal(t, "approver", ticket.AssignedTo.Username)
	assert.Equal(t, []string{events.TypeTicketCreated}, h.events.types())

	other := h.create(t)
	assert.NotEqual(t, ticket.ApprovalToken, other.ApprovalToken)

	stored, err := h.svc.Get(context.Background(), ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []ledgerdomain.Item{{CableType: "Cat6", CableLength: "100m", Quantity: 3}}, []ledgerdomain.Item(stored.Items))
	assert.Equal(t, ticket.ApprovalToken, stored.ApprovalToken)
}

func TestCreateTicketValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, nil, cat6Request())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	req := cat6Request()
	req.AssignedToID = 99
	_, err = h.svc.Create(ctx, creator, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAssignee)

	req = cat6Request()
	req.Items = nil
	_, err = h.svc.Create(ctx, creator, req)
	assert.ErrorIs(t, err, ledgerdomain.ErrItemsRequired)

	req = cat6Request()
	req.Items[0].Quantity = "0"
	_, err = h.svc.Create(ctx, creator, req)
	assert.ErrorIs(t, err, ledgerdomain.ErrItemQuantityRange)

	req = cat6Request()
	req.Priority = "urgent"
	_, err = h.svc.Create(ctx, creator, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPriority)

	assert.Empty(t, h.events.types())
}

func TestLifecycleWritesConsumptionOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ledger.Record(ctx, []ledgerdomain.MovementInput{{
		MovementType:  ledgerdomain.MovementTypeReceipt,
		SourceType:    ledgerdomain.SourceTypeCableReceiving,
		SourceID:      500,
		CableType:     "Cat6",
		CableLength:   "100m",
		QuantityDelta: 10,
	}})
	require.NoError(t, err)

	ticket := h.create(t)

	for _, status := range []string{"approved", "in_progress", "fulfilled"} {
		h.clock.Advance(time.Minute)
		updated, err := h.patch(ticket.ID, assignee, status)
		require.NoError(t, err, status)
		assert.Equal(t, domain.Status(status), updated.Status)
		assert.Equal(t, h.clock.Now(), updated.UpdatedAt)
	}

	movements := h.consumption(t, ticket.ID)
	require.Len(t, movements, 1)
	assert.Equal(t, ledgerdomain.MovementTypeConsumption, movements[0].MovementType)
	assert.Equal(t, -1, movements[0].QuantityDelta)
	assert.Equal(t, "Ticket #"+strconv.FormatInt(ticket.ID, 10)+" fulfilled", movements[0].Notes)
	require.NotNil(t, movements[0].ActorUserID)
	assert.Equal(t, assignee.ID, *movements[0].ActorUserID)

	onHand, err := h.ledger.OnHandSummary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []ledgerdomain.OnHand{{CableType: "Cat6", CableLength: "100m", OnHand: 9}}, onHand)

	// Retried fulfillment is a self-transition and writes nothing.
	_, err = h.patch(ticket.ID, assignee, "fulfilled")
	require.NoError(t, err)
	assert.Len(t, h.consumption(t, ticket.ID), 1)

	_, err = h.patch(ticket.ID, assignee, "closed")
	require.NoError(t, err)

	_, err = h.patch(ticket.ID, assignee, "in_progress")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.patch(ticket.ID, admin, "approved")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, []string{
		events.TypeTicketCreated,
		events.TypeTicketStatusChanged,
		events.TypeTicketStatusChanged,
	}, h.events.types())
}

func TestConcurrentFulfillmentConsumesOnce(t *testing.T) {
	h := newHarness(t, nil)
	ticket := h.create(t)
	_, err := h.patch(ticket.ID, assignee, "approved")
	require.NoError(t, err)
	_, err = h.patch(ticket.ID, assignee, "in_progress")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.patch(ticket.ID, assignee, "fulfilled")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, h.consumption(t, ticket.ID), 1)
}

func TestLedgerFailureRollsBackFulfillment(t *testing.T) {
	h := newHarness(t, failingLedger{})
	ticket := h.create(t)
	_, err := h.patch(ticket.ID, assignee, "approved")
	require.NoError(t, err)
	_, err = h.patch(ticket.ID, assignee, "in_progress")
	require.NoError(t, err)

	_, err = h.patch(ticket.ID, assignee, "fulfilled")
	assert.ErrorIs(t, err, domain.ErrLedgerWriteFailed)

	stored, err := h.svc.Get(context.Background(), ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, stored.Status)
	assert.NotContains(t, h.events.types()[1:], events.TypeTicketCreated)
	assert.Len(t, h.events.types(), 2)
}

func TestUpdateCheckOrder(t *testing.T) {
	h := newHarness(t, nil)
	ticket := h.create(t)

	_, err := h.patch(ticket.ID, nil, "approved")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = h.patch(12345, assignee, "approved")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.patch(ticket.ID, outsider, "shipped")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = h.patch(ticket.ID, outsider, "deleted")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	// Workflow is checked before the actor, and admins do not bypass it.
	_, err = h.patch(ticket.ID, outsider, "fulfilled")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.patch(ticket.ID, admin, "fulfilled")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.patch(ticket.ID, outsider, "approved")
	assert.ErrorIs(t, err, domain.ErrForbiddenApproval)
	_, err = h.patch(ticket.ID, creator, "rejected")
	assert.ErrorIs(t, err, domain.ErrForbiddenApproval)

	_, err = h.patch(ticket.ID, admin, "approved")
	require.NoError(t, err)
	_, err = h.patch(ticket.ID, outsider, "in_progress")
	assert.ErrorIs(t, err, domain.ErrForbiddenWork)

	reason := "wrong cable gauge"
	_, err = h.svc.Update(context.Background(), outsider, ticket.ID, domain.UpdateRequest{RejectionReason: &reason})
	assert.ErrorIs(t, err, domain.ErrForbiddenRejection)

	updated, err := h.svc.Update(context.Background(), assignee, ticket.ID, domain.UpdateRequest{RejectionReason: &reason})
	require.NoError(t, err)
	require.NotNil(t, updated.RejectionReason)
	assert.Equal(t, "wrong cable gauge", *updated.RejectionReason)
	assert.Equal(t, domain.StatusApproved, updated.Status)

	_, err = h.svc.SoftDelete(context.Background(), creator, ticket.ID)
	require.NoError(t, err)
	_, err = h.patch(ticket.ID, admin, "closed")
	assert.ErrorIs(t, err, domain.ErrDeleted)
}

func TestApproveViaToken(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := h.create(t)

	_, err := h.svc.ApproveViaToken(ctx, 999, ticket.ApprovalToken)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.ApproveViaToken(ctx, ticket.ID, "not-the-token")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	res, err := h.svc.ApproveViaToken(ctx, ticket.ID, ticket.ApprovalToken)
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, domain.StatusApproved, res.Ticket.Status)

	again, err := h.svc.ApproveViaToken(ctx, ticket.ID, ticket.ApprovalToken)
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, domain.StatusApproved, again.Ticket.Status)

	rejectAfter, err := h.svc.RejectViaToken(ctx, ticket.ID, ticket.ApprovalToken, "")
	require.NoError(t, err)
	assert.True(t, rejectAfter.AlreadyProcessed)
	assert.Equal(t, domain.StatusApproved, rejectAfter.Ticket.Status)

	assert.Equal(t, []string{events.TypeTicketCreated, events.TypeTicketStatusChanged}, h.events.types())
}

func TestRejectViaTokenDefaultsReason(t *testing.T) {
	h := newHarness(t, nil)
	ticket := h.create(t)

	res, err := h.svc.RejectViaToken(context.Background(), ticket.ID, ticket.ApprovalToken, "  ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, res.Ticket.Status)
	require.NotNil(t, res.Ticket.RejectionReason)
	assert.Equal(t, "No reason provided", *res.Ticket.RejectionReason)
}

func TestTokenMismatchBeforeArchiveState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := h.create(t)
	_, err := h.svc.SoftDelete(ctx, creator, ticket.ID)
	require.NoError(t, err)

	_, err = h.svc.ApproveViaToken(ctx, ticket.ID, "forged")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = h.svc.ApproveViaToken(ctx, ticket.ID, ticket.ApprovalToken)
	assert.ErrorIs(t, err, domain.ErrDeleted)
	_, err = h.svc.RejectViaToken(ctx, ticket.ID, ticket.ApprovalToken, "no")
	assert.ErrorIs(t, err, domain.ErrDeleted)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := h.create(t)
	_, err := h.patch(ticket.ID, assignee, "approved")
	require.NoError(t, err)

	_, err = h.svc.SoftDelete(ctx, assignee, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrForbiddenDelete)

	deleted, err := h.svc.SoftDelete(ctx, creator, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, deleted.Status)
	require.NotNil(t, deleted.DeletedPreviousStatus)
	assert.Equal(t, domain.StatusApproved, *deleted.DeletedPreviousStatus)

	_, err = h.svc.SoftDelete(ctx, admin, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyDeleted)

	_, err = h.svc.Get(ctx, ticket.ID, false)
	assert.ErrorIs(t, err, domain.ErrDeleted)
	archived, err := h.svc.Get(ctx, ticket.ID, true)
	require.NoError(t, err)
	require.NotNil(t, archived.DeletedByID)
	assert.Equal(t, creator.ID, *archived.DeletedByID)
	require.NotNil(t, archived.DeletedAt)

	visible, err := h.svc.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := h.svc.List(ctx, domain.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = h.svc.Restore(ctx, outsider, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrForbiddenRestore)

	restored, err := h.svc.Restore(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, restored.Status)

	stored, err := h.svc.Get(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Nil(t, stored.DeletedAt)
	assert.Nil(t, stored.DeletedByID)
	assert.Nil(t, stored.DeletedPreviousStatus)

	_, err = h.svc.Restore(ctx, admin, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrNotDeleted)
}

func TestRestoreWithoutPreviousStatusFallsBackToPending(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := h.create(t)

	// Rows archived before previous status was tracked.
	require.NoError(t, h.db.Exec("UPDATE tickets SET status = 'deleted' WHERE id = ?", ticket.ID).Error)

	restored, err := h.svc.Restore(ctx, creator, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingApproval, restored.Status)
}

func TestPurge(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := h.create(t)
	require.NoError(t, h.db.Exec(
		"INSERT INTO notifications (id, ticket_id, recipient_user_id, notification_type, status, created_at) VALUES (?, ?, ?, 'email', 'sent', ?)",
		1, ticket.ID, assignee.ID, h.clock.Now(),
	).Error)

	err := h.svc.Purge(ctx, admin, 4242)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = h.svc.Purge(ctx, creator, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrForbiddenPurge)

	err = h.svc.Purge(ctx, admin, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrNotArchived)

	_, err = h.svc.SoftDelete(ctx, admin, ticket.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.Purge(ctx, admin, ticket.ID))

	_, err = h.svc.Get(ctx, ticket.ID, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var remaining int64
	require.NoError(t, h.db.Table("notifications").Where("ticket_id = ?", ticket.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
}

func TestPurgeRollsBackWhenRestoredFirst(t *testing.T) {
	repo := &racingRepo{
		Repository: repository.Provide(),
		op:         "purge",
		times:      1,
		interleave: func(tx *gorm.DB, id int64) error {
			return tx.Exec(
				"UPDATE tickets SET status = 'approved', deleted_at = NULL, deleted_by_id = NULL, deleted_previous_status = NULL WHERE id = ?",
				id,
			).Error
		},
	}
	h := newHarnessWithRepo(t, nil, repo)
	ctx := context.Background()
	ticket := h.create(t)
	require.NoError(t, h.db.Exec(
		"INSERT INTO notifications (id, ticket_id, recipient_user_id, notification_type, status, created_at) VALUES (?, ?, ?, 'email', 'sent', ?)",
		1, ticket.ID, assignee.ID, h.clock.Now(),
	).Error)
	_, err := h.svc.SoftDelete(ctx, creator, ticket.ID)
	require.NoError(t, err)

	err = h.svc.Purge(ctx, admin, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrNotArchived)

	var tickets, notifications int64
	require.NoError(t, h.db.Table("tickets").Where("id = ?", ticket.ID).Count(&tickets).Error)
	assert.EqualValues(t, 1, tickets)
	require.NoError(t, h.db.Table("notifications").Where("ticket_id = ?", ticket.ID).Count(&notifications).Error)
	assert.EqualValues(t, 1, notifications)
}

func TestSoftDeleteRecordsStatusChangedBeforeArchive(t *testing.T) {
	repo := &racingRepo{
		Repository: repository.Provide(),
		op:         "archive",
		times:      1,
		interleave: func(tx *gorm.DB, id int64) error {
			return tx.Exec("UPDATE tickets SET status = 'in_progress' WHERE id = ?", id).Error
		},
	}
	h := newHarnessWithRepo(t, nil, repo)
	ctx := context.Background()
	ticket := h.create(t)
	_, err := h.patch(ticket.ID, assignee, "approved")
	require.NoError(t, err)

	deleted, err := h.svc.SoftDelete(ctx, creator, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedPreviousStatus)
	assert.Equal(t, domain.StatusInProgress, *deleted.DeletedPreviousStatus)

	restored, err := h.svc.Restore(ctx, creator, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, restored.Status)
}

func TestSoftDeleteGivesUpUnderConstantChurn(t *testing.T) {
	repo := &racingRepo{
		Repository: repository.Provide(),
		op:         "archive",
		times:      -1,
		interleave: func(tx *gorm.DB, id int64) error {
			return tx.Exec(
				"UPDATE tickets SET status = CASE status WHEN 'approved' THEN 'in_progress' ELSE 'approved' END WHERE id = ?",
				id,
			).Error
		},
	}
	h := newHarnessWithRepo(t, nil, repo)
	ctx := context.Background()
	ticket := h.create(t)
	_, err := h.patch(ticket.ID, assignee, "approved")
	require.NoError(t, err)

	_, err = h.svc.SoftDelete(ctx, creator, ticket.ID)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	stored, err := h.svc.Get(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	assert.Nil(t, stored.DeletedPreviousStatus)
}

func TestRestoreUsesPreviousStatusSeenUnderLock(t *testing.T) {
	repo := &racingRepo{
		Repository: repository.Provide(),
		op:         "restore",
		times:      1,
		interleave: func(tx *gorm.DB, id int64) error {
			return tx.Exec("UPDATE tickets SET deleted_previous_status = 'fulfilled' WHERE id = ?", id).Error
		},
	}
	h := newHarnessWithRepo(t, nil, repo)
	ctx := context.Background()
	ticket := h.create(t)
	_, err := h.patch(ticket.ID, assignee, "approved")
	require.NoError(t, err)
	_, err = h.svc.SoftDelete(ctx, creator, ticket.ID)
	require.NoError(t, err)

	restored, err := h.svc.Restore(ctx, creator, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, restored.Status)

	stored, err := h.svc.Get(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, stored.Status)
	assert.Nil(t, stored.DeletedPreviousStatus)
}

func TestListFilters(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first := h.create(t)
	h.clock.Advance(time.Minute)
	second := h.create(t)
	_, err := h.patch(second.ID, assignee, "approved")
	require.NoError(t, err)

	all, err := h.svc.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, "approver", all[0].AssignedTo.Username)

	pending, err := h.svc.List(ctx, domain.ListFilter{Status: "pending_approval"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	_, err = h.svc.List(ctx, domain.ListFilter{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestStats(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.create(t)
	b := h.create(t)
	h.create(t)
	_, err := h.patch(a.ID, assignee, "rejected")
	require.NoError(t, err)
	_, err = h.svc.SoftDelete(ctx, creator, b.ID)
	require.NoError(t, err)

	stats, err := h.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.Stats{TotalTickets: 2, PendingApproval: 1, Rejected: 1, Archived: 1}, stats)
}

func TestDeletedPreviousStatusSetOnlyWhileArchived(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket := h.create(t)

	check := func() {
		stored, err := h.svc.Get(ctx, ticket.ID, true)
		require.NoError(t, err)
		assert.Equal(t, stored.Status == domain.StatusDeleted, stored.DeletedPreviousStatus != nil)
	}

	check()
	_, err := h.svc.SoftDelete(ctx, creator, ticket.ID)
	require.NoError(t, err)
	check()
	_, err = h.svc.Restore(ctx, creator, ticket.ID)
	require.NoError(t, err)
	check()
}
