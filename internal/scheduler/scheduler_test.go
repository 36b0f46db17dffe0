package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useSchedulerRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "rigmarket",
		Environment: "test",
	})
	return registry
}

func jobLabels(job string, extra ...string) map[string]string {
	labels := map[string]string{
		"service": "rigmarket",
		"env":     "test",
		"job":     job,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		labels[extra[i]] = extra[i+1]
	}
	return labels
}

func TestRunOnceCountsEveryEnabledJob(t *testing.T) {
	registry := useSchedulerRegistry(t)
	f := newJobFixture(t)
	f.seedPayee(t, true)
	f.seedPayout(t)
	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		Return(gatewaydomain.Transfer{ID: "tr_1"}, nil).
		Times(1)

	s := f.scheduler(t, Config{SweepAbandonedAfter: time.Hour})
	require.NoError(t, s.RunOnce(context.Background()))

	for _, job := range []string{JobPayoutDispatch, JobReconcile, JobAbandonedCheckoutSweep} {
		assert.Equal(t, float64(1), getCounterValue(t, registry, "rigmarket_scheduler_job_runs_total", jobLabels(job)), job)
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "rigmarket_scheduler_batch_processed_total",
		jobLabels(JobPayoutDispatch, "resource", "ledger_entry")))
}

func TestPayoutDispatchTimeoutIsSoftAndCounted(t *testing.T) {
	registry := useSchedulerRegistry(t)
	f := newJobFixture(t)
	f.seedPayee(t, true)
	entry := f.seedPayout(t)
	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ gatewaydomain.TransferRequest) (gatewaydomain.Transfer, error) {
			<-ctx.Done()
			return gatewaydomain.Transfer{}, ctx.Err()
		}).
		Times(1)

	s := f.scheduler(t, Config{})
	err := s.runJob(context.Background(), JobPayoutDispatch, 0, 50*time.Millisecond, s.PayoutDispatchJob)
	require.NoError(t, err)

	assert.Equal(t, float64(1), getCounterValue(t, registry, "rigmarket_scheduler_job_timeouts_total", jobLabels(JobPayoutDispatch)))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "rigmarket_scheduler_job_errors_total",
		jobLabels(JobPayoutDispatch, "reason", obsmetrics.SchedulerJobReasonDeadlineExceeded)))

	// The entry is retried on the next tick.
	info, err := f.aging.GetPayoutInfo(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Nil(t, info.ExternalTransferID)
}

func TestRunOnceClassifiesRejectedTransfers(t *testing.T) {
	registry := useSchedulerRegistry(t)
	f := newJobFixture(t)
	f.seedPayee(t, true)
	f.seedPayout(t)
	rejected := &gatewaydomain.GatewayError{Op: "create_transfer", Code: "account_invalid", StatusCode: 400, Err: errors.New("no such destination")}
	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		Return(gatewaydomain.Transfer{}, rejected).
		Times(1)

	s := f.scheduler(t, Config{EnabledJobs: []string{JobPayoutDispatch}})
	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, rejected)

	assert.Equal(t, float64(1), getCounterValue(t, registry, "rigmarket_scheduler_job_errors_total",
		jobLabels(JobPayoutDispatch, "reason", obsmetrics.SchedulerJobReasonGatewayRejected)))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
