package repository

import (
	"context"

	"github.com/smallbiznis/cabletrack/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

func (r *repo) ListByTicket(ctx context.Context, db *gorm.DB, ticketID int64) ([]domain.Notification, error) {
	var items []domain.Notification
	err := db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) DeleteByTicket(ctx context.Context, db *gorm.DB, ticketID int64) (int64, error) {
	result := db.WithContext(ctx).Where("ticket_id = ?", ticketID).Delete(&domain.Notification{})
	return result.RowsAffected, result.Error
}
