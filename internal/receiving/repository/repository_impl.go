package repository

import (
	"context"

	"github.com/smallbiznis/cabletrack/internal/receiving/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, receipt *domain.CableReceipt) error {
	return db.WithContext(ctx).Create(receipt).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.CableReceipt, error) {
	var items []domain.CableReceipt
	err := db.WithContext(ctx).
		Order("received_at DESC").
		Order("id DESC").
		Find(&items).Error
	return items, err
}
