package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is the write-once audit row of one delivery attempt.
type Notification struct {
	ID               int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TicketID         int64      `gorm:"column:ticket_id;not null" json:"ticket_id"`
	RecipientUserID  int64      `gorm:"column:recipient_user_id;not null" json:"recipient_user_id"`
	NotificationType Channel    `gorm:"column:notification_type;not null" json:"type"`
	Status           Status     `gorm:"column:status;not null" json:"status"`
	ErrorMessage     *string    `gorm:"column:error_message" json:"error_message,omitempty"`
	SentAt           *time.Time `gorm:"column:sent_at" json:"sent_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	ListByTicket(ctx context.Context, db *gorm.DB, ticketID int64) ([]Notification, error)
	DeleteByTicket(ctx context.Context, db *gorm.DB, ticketID int64) (int64, error)
}

type Service interface {
	ListByTicket(ctx context.Context, ticketID int64) ([]Notification, error)
	DeleteByTicketTx(ctx context.Context, tx *gorm.DB, ticketID int64) (int64, error)
}
