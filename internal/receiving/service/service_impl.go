package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/clock"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/cabletrack/internal/observability/metrics"
	"github.com/smallbiznis/cabletrack/internal/receiving/domain"
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
	Repo       domain.Repository
	Ledger     ledgerdomain.Service
	Identity   authdomain.IdentityLookup
	Clock      clock.Clock
	Timeout    db.StatementTimeout `optional:"true"`
	Audit      auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	ledger     ledgerdomain.Service
	identity   authdomain.IdentityLookup
	clock      clock.Clock
	timeout    db.StatementTimeout
	audit      auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("receiving.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledger:     p.Ledger,
		identity:   p.Identity,
		clock:      clk,
		timeout:    p.Timeout,
		audit:      p.Audit,
		obsMetrics: p.ObsMetrics,
	}
}

// Receive stores the receipt and its positive ledger rows in one
// transaction. No receipt survives without its movements.
func (s *Service) Receive(ctx context.Context, actor *authdomain.User, req domain.ReceiveRequest) (*domain.CableReceipt, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	items, err := ledgerdomain.NormalizeItems(req.Items)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	receipt := &domain.CableReceipt{
		ID:           s.genID.Generate().Int64(),
		Vendor:       optionalText(req.Vendor),
		PONumber:     optionalText(req.PONumber),
		Items:        items,
		Notes:        optionalText(req.Notes),
		ReceivedByID: actor.ID,
		ReceivedAt:   now,
		CreatedAt:    now,
	}

	actorID := actor.ID
	notes := fmt.Sprintf("Cable receipt #%d", receipt.ID)
	batch := make([]ledgerdomain.MovementInput, 0, len(items))
	for _, item := range items {
		batch = append(batch, ledgerdomain.MovementInput{
			MovementType:  ledgerdomain.MovementTypeReceipt,
			SourceType:    ledgerdomain.SourceTypeCableReceiving,
			SourceID:      receipt.ID,
			ActorUserID:   &actorID,
			CableType:     item.CableType,
			CableLength:   item.CableLength,
			QuantityDelta: item.Quantity,
			Notes:         notes,
		})
	}

	var movements []ledgerdomain.Movement
	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()
	err = s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(dbCtx, tx, receipt); err != nil {
			return err
		}
		res, err := s.ledger.RecordTx(dbCtx, tx, batch)
		if err != nil {
			s.log.Error("ledger write failed, rolling back receipt",
				zap.Int64("receipt_id", receipt.ID),
				zap.Error(err),
			)
			return fmt.Errorf("%w: %v", domain.ErrLedgerWriteFailed, err)
		}
		movements = res.Movements
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt.ReceivedBy = actor.Summary()

	s.log.Info("cable receiving recorded",
		zap.Int64("receipt_id", receipt.ID),
		zap.Int64("actor_id", actor.ID),
		zap.Int("item_count", len(items)),
	)
	s.obsMetrics.RecordLedgerMovements(ctx, ledgerdomain.SourceTypeCableReceiving, string(ledgerdomain.MovementTypeReceipt), len(movements))
	if s.audit != nil {
		_ = s.audit.Record(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeUser,
			ActorID:    strconv.FormatInt(actor.ID, 10),
			Action:     auditdomain.ActionCableReceived,
			TargetType: "cable_receipt",
			TargetID:   strconv.FormatInt(receipt.ID, 10),
			Metadata:   map[string]any{"item_count": len(items)},
		})
	}
	return receipt, nil
}

func (s *Service) List(ctx context.Context) ([]domain.CableReceipt, error) {
	dbCtx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	items, err := s.repo.List(dbCtx, s.db)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.CableReceipt{}
	}

	cache := map[int64]*authdomain.Summary{}
	for i := range items {
		id := items[i].ReceivedByID
		summary, ok := cache[id]
		if !ok {
			user, err := s.identity.GetByID(ctx, id)
			if err != nil {
				s.log.Debug("receipt user lookup failed", zap.Int64("user_id", id), zap.Error(err))
			}
			summary = user.Summary()
			cache[id] = summary
		}
		items[i].ReceivedBy = summary
	}
	return items, nil
}

func optionalText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
