package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"github.com/smallbiznis/rigmarket/internal/scheduler/guard"
	"go.uber.org/zap"
)

// AbandonedCheckoutSweepJob expires gateway sessions for orders that have
// sat in processing longer than SweepAbandonedAfter. The order itself is
// cancelled by the resulting expiry webhook, not here.
func (s *Scheduler) AbandonedCheckoutSweepJob(ctx context.Context) error {
	if s.cfg.SweepAbandonedAfter <= 0 {
		return nil
	}
	ctx, run, owner := s.ensureJobRun(ctx, JobAbandonedCheckoutSweep, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	orders, err := s.orders.ListStaleProcessing(ctx, s.db, s.cursors.get(JobAbandonedCheckoutSweep), now.Add(-s.cfg.SweepAbandonedAfter), s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.sweep.list.failed", JobAbandonedCheckoutSweep, err)
		return err
	}
	var lastID snowflake.ID
	if len(orders) > 0 {
		lastID = orders[len(orders)-1].ID
	}
	s.cursors.advance(JobAbandonedCheckoutSweep, lastID, len(orders), s.cfg.BatchSize)

	var (
		jobErr  error
		expired int
	)
	for _, order := range orders {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		fields := []zap.Field{
			zap.String("order_id", order.ID.String()),
			zap.String("external_session_id", order.SessionID()),
		}
		if err := guard.EnsureOrderAbandoned(order, now, s.cfg.SweepAbandonedAfter); err != nil {
			continue
		}

		err := s.gateway.ExpireCheckoutSession(ctx, order.SessionID())
		switch {
		case err == nil:
			expired++
			s.logger(ctx).Info("abandoned checkout session expired", fields...)
		case errors.Is(err, gatewaydomain.ErrSessionNotExpired):
			// Completed or already expired at the gateway; its webhook settles the order.
			s.logger(ctx).Debug("scheduler.sweep.session.closed", fields...)
		case errors.Is(err, gatewaydomain.ErrNotConfigured):
			s.logDeferred(ctx, run, JobAbandonedCheckoutSweep, obsmetrics.SchedulerBatchDeferredReasonGatewayNotConfigured)
			run.AddProcessed(expired)
			obsmetrics.Scheduler().AddBatchProcessed(JobAbandonedCheckoutSweep, "order", expired)
			return jobErr
		default:
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.sweep.expire.failed", JobAbandonedCheckoutSweep, err, fields...)
		}
	}

	run.AddProcessed(expired)
	obsmetrics.Scheduler().AddBatchProcessed(JobAbandonedCheckoutSweep, "order", expired)
	return jobErr
}
