package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeToken  ActorType = "approval_token"
	ActorTypeSystem ActorType = "system"
)

const (
	ActionTicketArchived  = "ticket.archived"
	ActionTicketRestored  = "ticket.restored"
	ActionTicketPurged    = "ticket.purged"
	ActionTicketApproved  = "ticket.approved_via_link"
	ActionTicketRejected  = "ticket.rejected_via_link"
	ActionCableReceived   = "cable_receiving.created"
	ActionUserRegistered  = "user.registered"
	ActionArchiveBackfill = "ticket.archive_backfilled"
	ActionInventoryAdjust = "inventory.adjusted"
)

type AuditLog struct {
	ID         int64             `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ActorType  string            `gorm:"column:actor_type;not null" json:"actor_type"`
	ActorID    *string           `gorm:"column:actor_id" json:"actor_id"`
	Action     string            `gorm:"column:action;not null" json:"action"`
	TargetType string            `gorm:"column:target_type;not null" json:"target_type"`
	TargetID   *string           `gorm:"column:target_id" json:"target_id"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	CreatedAt  time.Time         `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	// Record writes an entry outside any transaction. Failures are logged
	// and returned but callers treat them as best effort.
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

var (
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
