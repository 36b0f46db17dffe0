package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	"github.com/smallbiznis/rigmarket/internal/clock"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	obscontext "github.com/smallbiznis/rigmarket/internal/observability/context"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	webhookdomain "github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Gateway       gatewaydomain.Gateway
	LedgerSvc     ledgerdomain.Service
	PayeeSvc      payeedomain.Service
	Rentals       rentaldomain.Repository
	Orders        checkoutdomain.Repository
	WebhookEvents webhookdomain.Repository
	Config        Config              `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	gateway       gatewaydomain.Gateway
	ledgerSvc     ledgerdomain.Service
	payeeSvc      payeedomain.Service
	rentals       rentaldomain.Repository
	orders        checkoutdomain.Repository
	webhookEvents webhookdomain.Repository
	obsMetrics    *obsmetrics.Metrics
	cursors       batchCursors
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Gateway == nil ||
		p.LedgerSvc == nil || p.PayeeSvc == nil || p.Rentals == nil || p.Orders == nil || p.WebhookEvents == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		gateway:       p.Gateway,
		ledgerSvc:     p.LedgerSvc,
		payeeSvc:      p.PayeeSvc,
		rentals:       p.Rentals,
		orders:        p.Orders,
		webhookEvents: p.WebhookEvents,
		obsMetrics:    p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobPayoutDispatch, s.PayoutDispatchJob},
		{JobReconcile, s.ReconcileJob},
		{JobAbandonedCheckoutSweep, s.AbandonedCheckoutSweepJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}
