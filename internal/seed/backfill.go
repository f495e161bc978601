package seed

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"gorm.io/gorm"
)

// BackfillResult counts the rows touched by BackfillArchive.
type BackfillResult struct {
	Stamped    int64 `json:"stamped"`
	Normalized int64 `json:"normalized"`
}

// BackfillArchive repairs tickets archived before soft-delete metadata
// existed. Tickets already in the deleted status get a deleted_at stamp,
// and tickets carrying deleted_at under a live status are moved to deleted
// with their old status kept for restore.
func BackfillArchive(ctx context.Context, db *gorm.DB, auditSvc auditdomain.Service, now time.Time) (BackfillResult, error) {
	var result BackfillResult
	if db == nil {
		return result, errors.New("seed database handle is required")
	}
	deleted := string(ticketdomain.StatusDeleted)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stamped := tx.Exec(
			`UPDATE tickets SET deleted_at = updated_at
			 WHERE status = ? AND deleted_at IS NULL`,
			deleted,
		)
		if stamped.Error != nil {
			return stamped.Error
		}
		result.Stamped = stamped.RowsAffected

		normalized := tx.Exec(
			`UPDATE tickets
			 SET deleted_previous_status = status, status = ?, updated_at = ?
			 WHERE deleted_at IS NOT NULL AND status <> ?`,
			deleted,
			now.UTC(),
			deleted,
		)
		if normalized.Error != nil {
			return normalized.Error
		}
		result.Normalized = normalized.RowsAffected
		return nil
	})
	if err != nil {
		return result, err
	}

	if auditSvc != nil && (result.Stamped > 0 || result.Normalized > 0) {
		if err := auditSvc.Record(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     auditdomain.ActionArchiveBackfill,
			TargetType: "ticket",
			Metadata: map[string]any{
				"stamped":    result.Stamped,
				"normalized": result.Normalized,
			},
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}
