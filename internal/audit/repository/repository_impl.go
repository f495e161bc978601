package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/cabletrack/internal/audit/domain"
	"github.com/smallbiznis/cabletrack/pkg/db/option"
	"github.com/smallbiznis/cabletrack/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return repository.ProvideStore[domain.AuditLog](db).Create(ctx, entry)
}

// List returns matching entries newest first. Blank string filters are
// ignored.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.AuditLog, error) {
	var opts []option.QueryOption
	for column, value := range map[string]string{
		"action":      filter.Action,
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
		"actor_type":  filter.ActorType,
	} {
		if value = strings.TrimSpace(value); value != "" {
			opts = append(opts, option.WithWhere(column+" = ?", value))
		}
	}
	if filter.StartAt != nil {
		opts = append(opts, option.WithWhere("created_at >= ?", filter.StartAt.UTC()))
	}
	if filter.EndAt != nil {
		opts = append(opts, option.WithWhere("created_at <= ?", filter.EndAt.UTC()))
	}
	opts = append(opts,
		option.WithSortBy("created_at", "desc"),
		option.WithSortBy("id", "desc"),
		option.WithLimit(filter.Limit),
	)

	rows, err := repository.ProvideStore[domain.AuditLog](db).Find(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, *row)
	}
	return logs, nil
}
