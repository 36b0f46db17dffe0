package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	"go.uber.org/zap"
)

// ReconcileJob reports records whose local state disagrees with the gateway
// or with the ledger. It only logs and counts them.
func (s *Scheduler) ReconcileJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconcile, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)

	var jobErr error
	for _, step := range []func(context.Context, *jobRun) (int, error){
		s.reconcileUnsettledPayments,
		s.reconcileMissingLedger,
		func(ctx context.Context, run *jobRun) (int, error) {
			return s.reconcileStuckWebhooks(ctx, run, cutoff)
		},
	} {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		found, err := step(ctx, run)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
		}
		run.AddProcessed(found)
	}
	return jobErr
}

// reconcileUnsettledPayments asks the gateway about rentals still pending
// locally. A succeeded intent means the payment webhook was lost.
func (s *Scheduler) reconcileUnsettledPayments(ctx context.Context, run *jobRun) (int, error) {
	const key = JobReconcile + ".payments"
	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)
	rentals, err := s.rentals.ListPendingWithPayment(ctx, s.db, s.cursors.get(key), cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.rentals.failed", JobReconcile, err)
		return 0, err
	}
	s.cursors.advance(key, lastRentalID(rentals), len(rentals), s.cfg.BatchSize)

	found := 0
	checked := 0
	for _, rental := range rentals {
		intent, err := s.gateway.GetPaymentIntent(ctx, rental.PaymentID())
		if errors.Is(err, gatewaydomain.ErrNotConfigured) {
			s.logDeferred(ctx, run, JobReconcile, obsmetrics.SchedulerBatchDeferredReasonGatewayNotConfigured)
			break
		}
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.reconcile.payment.lookup.failed", JobReconcile, err,
				zap.String("rental_id", rental.ID.String()),
				zap.String("external_payment_id", rental.PaymentID()),
			)
			continue
		}
		checked++
		if intent.Status != gatewaydomain.PaymentIntentStatusSucceeded {
			continue
		}
		found++
		s.reconciliationCandidate(ctx, JobReconcile, "payment_succeeded_unsettled",
			zap.String("rental_id", rental.ID.String()),
			zap.String("external_payment_id", intent.ID),
			zap.Int64("amount", intent.Amount),
		)
	}
	obsmetrics.Scheduler().AddBatchProcessed(JobReconcile, "rental", checked)
	return found, nil
}

func (s *Scheduler) reconcileMissingLedger(ctx context.Context, run *jobRun) (int, error) {
	const key = JobReconcile + ".ledger"
	rentals, err := s.rentals.ListPaidMissingLedger(ctx, s.db, s.cursors.get(key), s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.ledger.failed", JobReconcile, err)
		return 0, err
	}
	s.cursors.advance(key, lastRentalID(rentals), len(rentals), s.cfg.BatchSize)
	for _, rental := range rentals {
		s.reconciliationCandidate(ctx, JobReconcile, "paid_missing_ledger",
			zap.String("rental_id", rental.ID.String()),
			zap.String("external_payment_id", rental.PaymentID()),
		)
	}
	return len(rentals), nil
}

// reconcileStuckWebhooks reports deliveries that were stored but never
// processed. The provider retries them; a row that stays here has exhausted
// its retries or keeps failing.
func (s *Scheduler) reconcileStuckWebhooks(ctx context.Context, run *jobRun, receivedBefore time.Time) (int, error) {
	const key = JobReconcile + ".webhooks"
	events, err := s.webhookEvents.ListUnprocessed(ctx, s.db, s.cursors.get(key), receivedBefore, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.webhooks.failed", JobReconcile, err)
		return 0, err
	}
	var lastID snowflake.ID
	if len(events) > 0 {
		lastID = events[len(events)-1].ID
	}
	s.cursors.advance(key, lastID, len(events), s.cfg.BatchSize)
	for _, evt := range events {
		fields := []zap.Field{
			zap.String("provider", evt.Provider),
			zap.String("event_id", evt.EventID),
			zap.String("event_type", evt.EventType),
			zap.Int("attempts", evt.Attempts),
			zap.Time("received_at", evt.ReceivedAt),
		}
		if evt.ProcessingError != nil {
			fields = append(fields, zap.String("processing_error", *evt.ProcessingError))
		}
		s.reconciliationCandidate(ctx, JobReconcile, "webhook_unprocessed", fields...)
	}
	return len(events), nil
}

func lastRentalID(rentals []rentaldomain.Rental) snowflake.ID {
	if len(rentals) == 0 {
		return 0
	}
	return rentals[len(rentals)-1].ID
}
