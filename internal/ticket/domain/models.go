package domain

import (
	"context"
	"time"

	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ticket is a request for cable stock.
type Ticket struct {
	ID                    int64                                  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CreatedByID           int64                                  `gorm:"column:created_by_id;not null" json:"created_by_id"`
	AssignedToID          int64                                  `gorm:"column:assigned_to_id;not null" json:"assigned_to_id"`
	Status                Status                                 `gorm:"column:status;not null" json:"status"`
	Items                 datatypes.JSONSlice[ledgerdomain.Item] `gorm:"column:items;not null" json:"items"`
	Location              *string                                `gorm:"column:location" json:"location"`
	Notes                 *string                                `gorm:"column:notes" json:"notes"`
	Priority              Priority                               `gorm:"column:priority;not null" json:"priority"`
	ApprovalToken         string                                 `gorm:"column:approval_token;not null" json:"-"`
	RejectionReason       *string                                `gorm:"column:rejection_reason" json:"rejection_reason"`
	DeletedAt             *time.Time                             `gorm:"column:deleted_at" json:"deleted_at"`
	DeletedByID           *int64                                 `gorm:"column:deleted_by_id" json:"deleted_by_id"`
	DeletedPreviousStatus *Status                                `gorm:"column:deleted_previous_status" json:"deleted_previous_status"`
	CreatedAt             time.Time                              `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt             time.Time                              `gorm:"column:updated_at;not null" json:"updated_at"`

	CreatedBy  *authdomain.Summary `gorm:"-" json:"created_by,omitempty"`
	AssignedTo *authdomain.Summary `gorm:"-" json:"assigned_to,omitempty"`
}

// TableName sets the database table name.
func (Ticket) TableName() string { return "tickets" }

func (t *Ticket) IsDeleted() bool {
	return t != nil && t.Status == StatusDeleted
}

type CreateRequest struct {
	AssignedToID int64
	Items        []ledgerdomain.ItemInput
	Location     *string
	Notes        *string
	Priority     string
}

// UpdateRequest carries a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	Status          *string
	RejectionReason *string
}

type ListFilter struct {
	IncludeDeleted bool
	Status         string
	AssignedToID   *int64
	CreatedByID    *int64
}

// TokenResult is the outcome of an approval link. AlreadyProcessed is set
// when the ticket had left pending_approval before the link was used.
type TokenResult struct {
	Ticket           *Ticket
	AlreadyProcessed bool
}

type StatusCount struct {
	Status Status
	Count  int64
}

type Stats struct {
	TotalTickets    int64 `json:"total_tickets"`
	PendingApproval int64 `json:"pending_approval"`
	Approved        int64 `json:"approved"`
	Rejected        int64 `json:"rejected"`
	InProgress      int64 `json:"in_progress"`
	Fulfilled       int64 `json:"fulfilled"`
	Closed          int64 `json:"closed"`
	Archived        int64 `json:"archived"`
}

// SoftDelete is the metadata written when a ticket is archived.
type SoftDelete struct {
	DeletedAt      time.Time
	DeletedByID    int64
	PreviousStatus Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ticket *Ticket) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Ticket, error)
	// FindByIDForUpdate row-locks the ticket where the dialect supports it.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Ticket, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Ticket, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) error
	// MarkDeleted archives the ticket only while its status is still
	// meta.PreviousStatus and reports whether a row changed.
	MarkDeleted(ctx context.Context, db *gorm.DB, id int64, meta SoftDelete, now time.Time) (bool, error)
	// Restore moves an archived ticket to status only while its recorded
	// previous status is still from (nil matches an unrecorded one).
	Restore(ctx context.Context, db *gorm.DB, id int64, from *Status, status Status, now time.Time) (bool, error)
	// Delete removes the ticket only while it is archived.
	Delete(ctx context.Context, db *gorm.DB, id int64) (bool, error)
	CountByStatus(ctx context.Context, db *gorm.DB) ([]StatusCount, error)
}

// NotificationPurger removes the delivery audit rows of a ticket inside the
// purge transaction.
type NotificationPurger interface {
	DeleteByTicketTx(ctx context.Context, tx *gorm.DB, ticketID int64) (int64, error)
}

type Service interface {
	Create(ctx context.Context, actor *authdomain.User, req CreateRequest) (*Ticket, error)
	Get(ctx context.Context, id int64, includeDeleted bool) (*Ticket, error)
	List(ctx context.Context, filter ListFilter) ([]Ticket, error)
	Update(ctx context.Context, actor *authdomain.User, id int64, req UpdateRequest) (*Ticket, error)
	ApproveViaToken(ctx context.Context, id int64, token string) (*TokenResult, error)
	RejectViaToken(ctx context.Context, id int64, token string, reason string) (*TokenResult, error)
	SoftDelete(ctx context.Context, actor *authdomain.User, id int64) (*Ticket, error)
	Restore(ctx context.Context, actor *authdomain.User, id int64) (*Ticket, error)
	Purge(ctx context.Context, actor *authdomain.User, id int64) error
	Stats(ctx context.Context) (*Stats, error)
}
