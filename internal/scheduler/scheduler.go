package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	"github.com/smallbiznis/cabletrack/internal/clock"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	obscontext "github.com/smallbiznis/cabletrack/internal/observability/context"
	obsmetrics "github.com/smallbiznis/cabletrack/internal/observability/metrics"
	"github.com/smallbiznis/cabletrack/internal/ratelimit"
	"github.com/smallbiznis/cabletrack/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobArchiveReconcile = "archive_reconcile"
	JobNegativeStock    = "negative_stock_report"

	runLockKey = "cabletrack:scheduler:lock"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

// Scheduler runs periodic maintenance: it re-applies the archive backfill
// so rows written by older releases converge, and reports stock that went
// negative.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.LedgerSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	log := s.log.With(zap.String("job", name))

	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	if err == nil {
		s.obsMetrics.RecordSchedulerJob(ctx, name, "ok")
		log.Debug("job finished", zap.Duration("elapsed", elapsed))
		return nil
	}

	// deadline is a soft timeout; the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.obsMetrics.RecordSchedulerJob(ctx, name, "timeout")
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}

	s.obsMetrics.RecordSchedulerJob(ctx, name, "error")
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once. When a Redis locker is configured
// only one replica runs per interval.
func (s *Scheduler) RunOnce(parent context.Context) error {
	err := s.locker.Do(parent, runLockKey, s.cfg.RunInterval, s.runJobs)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.log.Debug("scheduler run held by another replica")
		return nil
	}
	return err
}

func (s *Scheduler) runJobs(ctx context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobArchiveReconcile, s.ArchiveReconcileJob},
		{JobNegativeStock, s.NegativeStockJob},
	}

	var err error
	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(ctx, job.Name, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// An empty EnabledJobs list enables every job.
func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) ArchiveReconcileJob(ctx context.Context) error {
	res, err := seed.BackfillArchive(ctx, s.db, s.auditSvc, s.clock.Now())
	if err != nil {
		return err
	}
	if res.Stamped > 0 || res.Normalized > 0 {
		s.log.Info("archived tickets reconciled",
			zap.Int64("stamped", res.Stamped),
			zap.Int64("normalized", res.Normalized),
		)
	}
	return nil
}

func (s *Scheduler) NegativeStockJob(ctx context.Context) error {
	rows, err := s.ledgerSvc.OnHandSummary(ctx, false)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.OnHand < 0 {
			s.log.Warn("negative stock on hand",
				zap.String("cable_type", row.CableType),
				zap.String("cable_length", row.CableLength),
				zap.Int64("on_hand", row.OnHand),
			)
		}
	}
	return nil
}
