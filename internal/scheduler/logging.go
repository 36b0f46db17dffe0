package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/rigmarket/internal/observability/context"
	obslogger "github.com/smallbiznis/rigmarket/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	deferredCount  int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) IncDeferred() {
	if r == nil {
		return
	}
	r.deferredCount++
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx = obscontext.WithCorrelationID(ctx, run.runID)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("deferred_count", run.deferredCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, job string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	if run != nil {
		run.IncError()
	}
	baseFields := []zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.String("error", err.Error()),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
	}
	s.logger(ctx).Error(msg, append(baseFields, fields...)...)
}

func (s *Scheduler) logDeferred(ctx context.Context, run *jobRun, job, reason string, fields ...zap.Field) {
	if run != nil {
		run.IncDeferred()
	}
	obsmetrics.Scheduler().IncBatchDeferred(job, reason)
	s.logger(ctx).Info("scheduler.batch.deferred",
		append([]zap.Field{zap.String("job", job), zap.String("reason", reason)}, fields...)...,
	)
}

// reconciliationCandidate reports a record that needs an operator decision.
// The scheduler never moves it to a terminal state.
func (s *Scheduler) reconciliationCandidate(ctx context.Context, job, reason string, fields ...zap.Field) {
	s.obsMetrics.RecordReconciliationCandidate(ctx, reason)
	s.logger(ctx).Warn("reconciliation candidate",
		append([]zap.Field{zap.String("job", job), zap.String("reason", reason)}, fields...)...,
	)
}
