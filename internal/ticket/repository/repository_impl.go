package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ticket *domain.Ticket) error {
	return db.WithContext(ctx).Create(ticket).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Ticket, error) {
	return r.find(ctx, db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Ticket, error) {
	stmt := db.WithContext(ctx)
	// sqlite serializes writers on its own and rejects FOR UPDATE.
	if stmt.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(ctx, stmt, id)
}

func (r *repo) find(_ context.Context, stmt *gorm.DB, id int64) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := stmt.Where("id = ?", id).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Ticket, error) {
	stmt := db.WithContext(ctx).Model(&domain.Ticket{})
	if !filter.IncludeDeleted {
		stmt = stmt.Where("status <> ?", domain.StatusDeleted)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AssignedToID != nil {
		stmt = stmt.Where("assigned_to_id = ?", *filter.AssignedToID)
	}
	if filter.CreatedByID != nil {
		stmt = stmt.Where("created_by_id = ?", *filter.CreatedByID)
	}

	var items []domain.Ticket
	err := stmt.Order("created_at DESC").Order("id DESC").Find(&items).Error
	return items, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id int64, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) MarkDeleted(ctx context.Context, db *gorm.DB, id int64, meta domain.SoftDelete, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("id = ? AND status = ? AND status <> ?", id, meta.PreviousStatus, domain.StatusDeleted).
		Updates(map[string]any{
			"status":                  domain.StatusDeleted,
			"deleted_at":              meta.DeletedAt,
			"deleted_by_id":           meta.DeletedByID,
			"deleted_previous_status": meta.PreviousStatus,
			"updated_at":              now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Restore(ctx context.Context, db *gorm.DB, id int64, from *domain.Status, status domain.Status, now time.Time) (bool, error) {
	stmt := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("id = ? AND status = ?", id, domain.StatusDeleted)
	if from == nil {
		stmt = stmt.Where("deleted_previous_status IS NULL")
	} else {
		stmt = stmt.Where("deleted_previous_status = ?", *from)
	}
	result := stmt.Updates(map[string]any{
		"status":                  status,
		"deleted_at":              nil,
		"deleted_by_id":           nil,
		"deleted_previous_status": nil,
		"updated_at":              now,
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	result := db.WithContext(ctx).
		Where("id = ? AND status = ?", id, domain.StatusDeleted).
		Delete(&domain.Ticket{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) ([]domain.StatusCount, error) {
	var rows []domain.StatusCount
	err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}
