package repository

import (
	"context"

	"github.com/smallbiznis/cabletrack/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertSource reports false when the source row already exists.
func (r *repo) InsertSource(ctx context.Context, db *gorm.DB, source *domain.Source) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(source)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertMovements(ctx context.Context, db *gorm.DB, movements []*domain.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(movements).Error
}

func (r *repo) SourceExists(ctx context.Context, db *gorm.DB, sourceType string, sourceID int64) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&domain.Source{}).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	// Rows written before ledger_sources existed have no header.
	if err := db.WithContext(ctx).Model(&domain.Movement{}).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Movement, error) {
	stmt := db.WithContext(ctx).Model(&domain.Movement{})
	if filter.MovementType != "" {
		stmt = stmt.Where("movement_type = ?", filter.MovementType)
	}
	if filter.SourceType != "" {
		stmt = stmt.Where("source_type = ?", filter.SourceType)
	}
	if filter.SourceID != nil {
		stmt = stmt.Where("source_id = ?", *filter.SourceID)
	}

	var items []domain.Movement
	err := stmt.Order("created_at DESC").Order("id DESC").Limit(filter.Limit).Find(&items).Error
	return items, err
}

func (r *repo) SumByCable(ctx context.Context, db *gorm.DB) ([]domain.OnHand, error) {
	var rows []domain.OnHand
	err := db.WithContext(ctx).Raw(
		`SELECT cable_type, cable_length, COALESCE(SUM(quantity_delta), 0) AS on_hand
		FROM inventory_movements
		GROUP BY cable_type, cable_length
		ORDER BY cable_type ASC, cable_length ASC`,
	).Scan(&rows).Error
	return rows, err
}
