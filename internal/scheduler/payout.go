package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	"github.com/smallbiznis/rigmarket/internal/scheduler/guard"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"go.uber.org/zap"
)

// PayoutDispatchJob requests a gateway transfer for each pending owner
// payout. The entry stays pending until the transfer webhook confirms it.
func (s *Scheduler) PayoutDispatchJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPayoutDispatch, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	entries, err := s.ledgerSvc.ListPendingPayouts(ctx, s.cursors.get(JobPayoutDispatch), s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.payout.list.failed", JobPayoutDispatch, err)
		return err
	}
	var lastID snowflake.ID
	if len(entries) > 0 {
		lastID = entries[len(entries)-1].ID
	}
	s.cursors.advance(JobPayoutDispatch, lastID, len(entries), s.cfg.BatchSize)

	var (
		jobErr    error
		processed int
	)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		dispatched, err := s.dispatchPayout(ctx, run, entry)
		if errors.Is(err, gatewaydomain.ErrNotConfigured) {
			// Nothing else in this batch can succeed either.
			s.logDeferred(ctx, run, JobPayoutDispatch, obsmetrics.SchedulerBatchDeferredReasonGatewayNotConfigured)
			break
		}
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if dispatched {
			processed++
		}
	}

	run.AddProcessed(processed)
	schedMetrics.AddBatchProcessed(JobPayoutDispatch, "ledger_entry", processed)
	return jobErr
}

func (s *Scheduler) dispatchPayout(ctx context.Context, run *jobRun, entry ledgerdomain.LedgerEntry) (bool, error) {
	entryFields := []zap.Field{
		zap.String("ledger_entry_id", entry.ID.String()),
		zap.String("rental_id", entry.RentalID.String()),
		zap.String("owner_id", entry.OwnerID),
	}

	account, err := s.payeeSvc.GetByOwner(ctx, entry.OwnerID)
	if errors.Is(err, payeedomain.ErrNotFound) {
		s.logDeferred(ctx, run, JobPayoutDispatch, obsmetrics.SchedulerBatchDeferredReasonPayoutsDisabled, entryFields...)
		return false, nil
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.payout.payee.failed", JobPayoutDispatch, err, entryFields...)
		return false, err
	}

	if err := guard.EnsurePayoutDispatchable(entry, account); err != nil {
		if errors.Is(err, guard.ErrPayoutsDisabled) || errors.Is(err, guard.ErrMissingPayeeAccount) {
			s.logDeferred(ctx, run, JobPayoutDispatch, obsmetrics.SchedulerBatchDeferredReasonPayoutsDisabled, entryFields...)
			return false, nil
		}
		s.logger(ctx).Debug("scheduler.payout.skipped", append(entryFields, zap.Error(err))...)
		return false, nil
	}

	transfer, err := s.gateway.CreateTransfer(ctx, gatewaydomain.TransferRequest{
		Amount:               entry.Amount,
		Currency:             entry.Currency,
		DestinationAccountID: account.ExternalAccountID,
		Metadata: map[string]string{
			"ledger_entry_id": entry.ID.String(),
			"rental_id":       entry.RentalID.String(),
		},
		IdempotencyKey: "payout:" + entry.ID.String(),
	})
	if errors.Is(err, gatewaydomain.ErrNotConfigured) {
		return false, err
	}
	if err != nil {
		s.obsMetrics.RecordPayoutTransfer(ctx, "gateway_error")
		s.logSchedulerError(ctx, run, "scheduler.payout.transfer.failed", JobPayoutDispatch, err, entryFields...)
		return false, err
	}

	if err := s.ledgerSvc.AttachTransfer(ctx, entry.ID, transfer.ID); err != nil {
		externalIDs := map[string]string{
			"ledger_entry_id":      entry.ID.String(),
			"external_transfer_id": transfer.ID,
		}
		if errors.Is(err, ledgerdomain.ErrTransferAttached) {
			s.reconciliationCandidate(ctx, JobPayoutDispatch, "transfer_mismatch",
				zap.Any("external_ids", externalIDs),
			)
			return false, nil
		}
		s.obsMetrics.RecordPersistenceFailure(ctx, "payout.attach_transfer")
		s.logSchedulerError(ctx, run, "scheduler.payout.attach.failed", JobPayoutDispatch, err,
			zap.Any("external_ids", externalIDs),
		)
		return false, db.NewPersistenceError("payout.attach_transfer", err, externalIDs)
	}

	s.obsMetrics.RecordPayoutTransfer(ctx, "dispatched")
	s.logger(ctx).Info("payout transfer dispatched",
		append(entryFields,
			zap.String("external_transfer_id", transfer.ID),
			zap.Int64("amount", entry.Amount),
			zap.String("currency", entry.Currency),
		)...,
	)
	return true, nil
}
