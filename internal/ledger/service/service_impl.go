package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabletrack/internal/clock"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/cabletrack/internal/observability/metrics"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Clock      clock.Clock
	Timeout    db.StatementTimeout `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	clock      clock.Clock
	timeout    db.StatementTimeout
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		timeout:    p.Timeout,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, movements []ledgerdomain.MovementInput) (*ledgerdomain.RecordResult, error) {
	ctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	var result *ledgerdomain.RecordResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.RecordTx(ctx, tx, movements)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordMetrics(ctx, result.Movements)
	return result, nil
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, movements []ledgerdomain.MovementInput) (*ledgerdomain.RecordResult, error) {
	normalized, source, err := normalizeBatch(movements)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if source != nil {
		source.CreatedAt = now
		inserted, err := s.repo.InsertSource(ctx, tx, source)
		if err != nil {
			return nil, err
		}
		if !inserted {
			s.log.Info("ledger source already recorded",
				zap.String("source_type", source.SourceType),
				zap.Int64("source_id", source.SourceID),
			)
			return &ledgerdomain.RecordResult{Skipped: true}, nil
		}
	}

	rows := make([]*ledgerdomain.Movement, 0, len(normalized))
	for _, in := range normalized {
		row := &ledgerdomain.Movement{
			ID:            s.genID.Generate().Int64(),
			MovementType:  in.MovementType,
			ActorUserID:   in.ActorUserID,
			CableType:     in.CableType,
			CableLength:   in.CableLength,
			QuantityDelta: in.QuantityDelta,
			Notes:         in.Notes,
			CreatedAt:     now,
		}
		if in.Sourced() {
			sourceType := in.SourceType
			sourceID := in.SourceID
			row.SourceType = &sourceType
			row.SourceID = &sourceID
		}
		rows = append(rows, row)
	}

	if err := s.repo.InsertMovements(ctx, tx, rows); err != nil {
		return nil, err
	}

	out := make([]ledgerdomain.Movement, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return &ledgerdomain.RecordResult{Movements: out}, nil
}

func (s *Service) ExistsForSource(ctx context.Context, sourceType string, sourceID int64) (bool, error) {
	ctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()
	return s.ExistsForSourceTx(ctx, s.db, sourceType, sourceID)
}

func (s *Service) ExistsForSourceTx(ctx context.Context, tx *gorm.DB, sourceType string, sourceID int64) (bool, error) {
	sourceType = strings.TrimSpace(sourceType)
	if sourceType == "" || sourceID == 0 {
		return false, ledgerdomain.ErrInvalidSource
	}
	return s.repo.SourceExists(ctx, tx, sourceType, sourceID)
}

func (s *Service) List(ctx context.Context, filter ledgerdomain.ListFilter) ([]ledgerdomain.Movement, error) {
	switch {
	case filter.Limit == 0:
		filter.Limit = ledgerdomain.DefaultListLimit
	case filter.Limit < 0:
		filter.Limit = 1
	case filter.Limit > ledgerdomain.MaxListLimit:
		filter.Limit = ledgerdomain.MaxListLimit
	}
	filter.MovementType = strings.TrimSpace(filter.MovementType)
	filter.SourceType = strings.TrimSpace(filter.SourceType)
	if filter.MovementType != "" && !ledgerdomain.MovementType(filter.MovementType).Valid() {
		return nil, ledgerdomain.ErrInvalidMovementType
	}

	ctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []ledgerdomain.Movement{}
	}
	return items, nil
}

func (s *Service) OnHandSummary(ctx context.Context, includeZero bool) ([]ledgerdomain.OnHand, error) {
	ctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	rows, err := s.repo.SumByCable(ctx, s.db)
	if err != nil {
		return nil, err
	}

	out := make([]ledgerdomain.OnHand, 0, len(rows))
	for _, row := range rows {
		if row.OnHand == 0 && !includeZero {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Service) recordMetrics(ctx context.Context, rows []ledgerdomain.Movement) {
	if s.obsMetrics == nil || len(rows) == 0 {
		return
	}
	sourceType := ""
	if rows[0].SourceType != nil {
		sourceType = *rows[0].SourceType
	}
	s.obsMetrics.RecordLedgerMovements(ctx, sourceType, string(rows[0].MovementType), len(rows))
}

// normalizeBatch validates every row and returns the shared source header
// for sourced batches. A batch may not mix sources, since the header is what
// guards the whole batch.
func normalizeBatch(movements []ledgerdomain.MovementInput) ([]ledgerdomain.MovementInput, *ledgerdomain.Source, error) {
	if len(movements) == 0 {
		return nil, nil, ledgerdomain.ErrEmptyBatch
	}

	var source *ledgerdomain.Source
	out := make([]ledgerdomain.MovementInput, 0, len(movements))
	for i, in := range movements {
		in.MovementType = ledgerdomain.MovementType(strings.ToLower(strings.TrimSpace(string(in.MovementType))))
		in.SourceType = strings.TrimSpace(in.SourceType)
		in.CableType = strings.TrimSpace(in.CableType)
		in.CableLength = strings.TrimSpace(in.CableLength)
		in.Notes = strings.TrimSpace(in.Notes)

		if !in.MovementType.Valid() {
			return nil, nil, ledgerdomain.ErrInvalidMovementType
		}
		if in.CableType == "" {
			return nil, nil, ledgerdomain.ErrInvalidCableType
		}
		if in.CableLength == "" {
			return nil, nil, ledgerdomain.ErrInvalidCableLength
		}
		if !deltaMatchesType(in.MovementType, in.QuantityDelta) {
			return nil, nil, ledgerdomain.ErrInvalidQuantityDelta
		}
		if (in.SourceType == "") != (in.SourceID == 0) {
			return nil, nil, ledgerdomain.ErrInvalidSource
		}

		if i == 0 {
			if in.Sourced() {
				source = &ledgerdomain.Source{SourceType: in.SourceType, SourceID: in.SourceID}
			}
		} else {
			sameSource := (source == nil && !in.Sourced()) ||
				(source != nil && in.SourceType == source.SourceType && in.SourceID == source.SourceID)
			if !sameSource {
				return nil, nil, ledgerdomain.ErrInvalidSource
			}
		}
		out = append(out, in)
	}
	return out, source, nil
}

func deltaMatchesType(t ledgerdomain.MovementType, delta int) bool {
	switch t {
	case ledgerdomain.MovementTypeReceipt:
		return delta > 0
	case ledgerdomain.MovementTypeConsumption:
		return delta < 0
	default:
		return delta != 0
	}
}
