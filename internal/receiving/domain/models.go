package domain

import (
	"context"
	"errors"
	"time"

	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CableReceipt records a delivery of cable stock.
type CableReceipt struct {
	ID           int64                                  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Vendor       *string                                `gorm:"column:vendor" json:"vendor"`
	PONumber     *string                                `gorm:"column:po_number" json:"po_number"`
	Items        datatypes.JSONSlice[ledgerdomain.Item] `gorm:"column:items;not null" json:"items"`
	Notes        *string                                `gorm:"column:notes" json:"notes"`
	ReceivedByID int64                                  `gorm:"column:received_by_id;not null" json:"received_by_id"`
	ReceivedAt   time.Time                              `gorm:"column:received_at;not null" json:"received_at"`
	CreatedAt    time.Time                              `gorm:"column:created_at;not null" json:"created_at"`

	ReceivedBy *authdomain.Summary `gorm:"-" json:"received_by,omitempty"`
}

// TableName sets the database table name.
func (CableReceipt) TableName() string { return "cable_receipts" }

type ReceiveRequest struct {
	Items    []ledgerdomain.ItemInput
	Vendor   *string
	PONumber *string
	Notes    *string
}

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden_cable_receiving")
	ErrLedgerWriteFailed = errors.New("receiving_ledger_write_failed")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, receipt *CableReceipt) error
	List(ctx context.Context, db *gorm.DB) ([]CableReceipt, error)
}

type Service interface {
	Receive(ctx context.Context, actor *authdomain.User, req ReceiveRequest) (*CableReceipt, error)
	List(ctx context.Context) ([]CableReceipt, error)
}
