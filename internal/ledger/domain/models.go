package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type MovementType string

const (
	MovementTypeReceipt     MovementType = "receipt"
	MovementTypeConsumption MovementType = "consumption"
	MovementTypeAdjustment  MovementType = "adjustment"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeReceipt, MovementTypeConsumption, MovementTypeAdjustment:
		return true
	default:
		return false
	}
}

const (
	SourceTypeCableReceiving    = "cable_receiving"
	SourceTypeTicketFulfillment = "ticket_fulfillment"
)

const (
	DefaultListLimit = 200
	MaxListLimit     = 1000
)

var (
	ErrEmptyBatch           = errors.New("invalid_movements")
	ErrInvalidMovementType  = errors.New("invalid_movement_type")
	ErrInvalidCableType     = errors.New("invalid_cable_type")
	ErrInvalidCableLength   = errors.New("invalid_cable_length")
	ErrInvalidQuantityDelta = errors.New("invalid_quantity_delta")
	ErrInvalidSource        = errors.New("invalid_source")
	ErrInvalidLimit         = errors.New("invalid_limit")
)

// Movement is one append-only row of the inventory ledger.
type Movement struct {
	ID            int64        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	MovementType  MovementType `gorm:"column:movement_type;not null" json:"movement_type"`
	SourceType    *string      `gorm:"column:source_type" json:"source_type"`
	SourceID      *int64       `gorm:"column:source_id" json:"source_id"`
	ActorUserID   *int64       `gorm:"column:actor_user_id" json:"actor_user_id"`
	CableType     string       `gorm:"column:cable_type;not null" json:"cable_type"`
	CableLength   string       `gorm:"column:cable_length;not null" json:"cable_length"`
	QuantityDelta int          `gorm:"column:quantity_delta;not null" json:"quantity_delta"`
	Notes         string       `gorm:"column:notes" json:"notes"`
	CreatedAt     time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

func (Movement) TableName() string { return "inventory_movements" }

// Source marks a business event as recorded. Its primary key on
// (source_type, source_id) is what makes sourced batches exactly-once.
type Source struct {
	SourceType string    `gorm:"column:source_type;primaryKey"`
	SourceID   int64     `gorm:"column:source_id;primaryKey;autoIncrement:false"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (Source) TableName() string { return "ledger_sources" }

type MovementInput struct {
	MovementType  MovementType
	SourceType    string
	SourceID      int64
	ActorUserID   *int64
	CableType     string
	CableLength   string
	QuantityDelta int
	Notes         string
}

func (in MovementInput) Sourced() bool {
	return strings.TrimSpace(in.SourceType) != "" && in.SourceID != 0
}

// RecordResult reports what a Record call wrote. Skipped is true when the
// source had already been recorded and nothing was appended.
type RecordResult struct {
	Movements []Movement
	Skipped   bool
}

type ListFilter struct {
	MovementType string
	SourceType   string
	SourceID     *int64
	Limit        int
}

type OnHand struct {
	CableType   string `json:"cable_type"`
	CableLength string `json:"cable_length"`
	OnHand      int64  `json:"on_hand"`
}

type Repository interface {
	InsertSource(ctx context.Context, db *gorm.DB, source *Source) (bool, error)
	InsertMovements(ctx context.Context, db *gorm.DB, movements []*Movement) error
	SourceExists(ctx context.Context, db *gorm.DB, sourceType string, sourceID int64) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Movement, error)
	SumByCable(ctx context.Context, db *gorm.DB) ([]OnHand, error)
}

type Service interface {
	// Record appends the batch in its own transaction.
	Record(ctx context.Context, movements []MovementInput) (*RecordResult, error)
	// RecordTx appends the batch inside the caller's transaction so the
	// caller's state change and the ledger rows commit or roll back together.
	RecordTx(ctx context.Context, tx *gorm.DB, movements []MovementInput) (*RecordResult, error)
	ExistsForSource(ctx context.Context, sourceType string, sourceID int64) (bool, error)
	ExistsForSourceTx(ctx context.Context, tx *gorm.DB, sourceType string, sourceID int64) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Movement, error)
	OnHandSummary(ctx context.Context, includeZero bool) ([]OnHand, error)
}
