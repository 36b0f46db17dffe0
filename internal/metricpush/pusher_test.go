package metricpush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/smallbiznis/rigmarket/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rigmarket_payout_transfers_total",
		Help: "test",
	}, []string{"result"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "rigmarket_gateway_latency_seconds",
		Help: "test",
	})
	reg.MustRegister(transfers, latency)
	transfers.WithLabelValues("dispatched").Add(3)
	latency.Observe(0.2)
	return reg
}

func TestRemoteWritePusherSendsCountersAndGauges(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
		written prompb.WriteRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		headers = r.Header.Clone()
		require.NoError(t, written.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, " token-1 ")
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer token-1", headers.Get("Authorization"))

	// The histogram is not representable as a single sample and is skipped.
	require.Len(t, written.Timeseries, 1)
	series := written.Timeseries[0]
	assert.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "rigmarket_payout_transfers_total"},
		{Name: "result", Value: "dispatched"},
	}, series.Labels)
	require.Len(t, series.Samples, 1)
	assert.Equal(t, float64(3), series.Samples[0].Value)
}

func TestRemoteWritePusherReportsRejectedWrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestPushgatewayPusherUsesJobAndGrouping(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pusher := NewPushgatewayPusher(srv.URL, "rigmarket-scheduler", map[string]string{
		"environment": "staging",
		"empty":       " ",
	})
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/rigmarket-scheduler/environment/staging", path)
}

func TestNewPusherSelectsExporter(t *testing.T) {
	cfg := config.Config{AppName: "rigmarket"}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush = config.MetricsPushConfig{Exporter: ExporterRemoteWrite}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush.Endpoint = "not a url"
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush.Endpoint = "https://metrics.example.com/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush.Exporter = ExporterPushgateway
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))
}

func TestBacklogRefreshCountsWaitingWork(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Exec(`INSERT INTO rentals (id, machine_id, renter_id, owner_id, start_date, end_date, daily_rate, currency, status, payment_status, created_at, updated_at)
		VALUES (1, 'm-1', 'r-1', 'o-1', ?, ?, 2500, 'USD', 'confirmed', 'paid', ?, ?),
		       (2, 'm-2', 'r-1', 'o-1', ?, ?, 2500, 'USD', 'confirmed', 'paid', ?, ?)`,
		now, now, now, now, now, now, now, now).Error)
	require.NoError(t, db.Exec(`INSERT INTO ledger_entries (id, rental_id, owner_id, entry_type, amount, currency, status, created_at, updated_at)
		VALUES (10, 1, 'o-1', 'rental_payment', 5250, 'USD', 'completed', ?, ?),
		       (11, 1, 'o-1', 'owner_payout', 5000, 'USD', 'pending', ?, ?)`,
		now, now, now, now).Error)
	require.NoError(t, db.Exec(`INSERT INTO webhook_events (id, provider, event_id, event_type, payload, attempts, received_at)
		VALUES (20, 'stripe', 'evt_1', 'payment.succeeded', '{}', 1, ?)`, now).Error)

	b := newBacklog(db)
	require.NoError(t, b.refresh(context.Background()))

	assert.Equal(t, float64(1), testutil.ToFloat64(b.gauge.WithLabelValues(backlogPendingPayouts)))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.gauge.WithLabelValues(backlogUnprocessedWebhooks)))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.gauge.WithLabelValues(backlogUnsettledPaidRentals)))
}

type recordingPusher struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if _, err := gatherer.Gather(); err != nil {
		return err
	}
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func TestWorkerPushesOnStartAndStop(t *testing.T) {
	pusher := &recordingPusher{}
	w := &worker{
		pusher:   pusher,
		backlog:  newBacklog(dbtest.Open(t)),
		log:      zap.NewNop(),
		interval: time.Hour,
	}
	w.gatherer = prometheus.Gatherers{w.backlog.registry}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx)
	}()
	require.Eventually(t, func() bool {
		pusher.mu.Lock()
		defer pusher.mu.Unlock()
		return pusher.calls == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	w.pushOnce(context.Background())

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	assert.Equal(t, 2, pusher.calls)
}
