package metricpush

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	backlogPendingPayouts       = "pending_payouts"
	backlogUnprocessedWebhooks  = "unprocessed_webhooks"
	backlogUnsettledPaidRentals = "paid_rentals_without_ledger"
)

// backlog samples settlement work that is waiting on the job runner.
// Values are refreshed right before each push.
type backlog struct {
	db       *gorm.DB
	registry *prometheus.Registry
	gauge    *prometheus.GaugeVec
}

func newBacklog(db *gorm.DB) *backlog {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rigmarket_settlement_backlog",
		Help: "Settlement records waiting on background processing.",
	}, []string{"kind"})
	registry := prometheus.NewRegistry()
	registry.MustRegister(gauge)
	return &backlog{db: db, registry: registry, gauge: gauge}
}

func (b *backlog) refresh(ctx context.Context) error {
	queries := []struct {
		kind  string
		query string
	}{
		{
			kind:  backlogPendingPayouts,
			query: `SELECT COUNT(1) FROM ledger_entries WHERE entry_type = 'owner_payout' AND status = 'pending'`,
		},
		{
			kind:  backlogUnprocessedWebhooks,
			query: `SELECT COUNT(1) FROM webhook_events WHERE processed_at IS NULL`,
		},
		{
			kind: backlogUnsettledPaidRentals,
			query: `SELECT COUNT(1) FROM rentals r
				WHERE r.payment_status = 'paid'
				AND NOT EXISTS (
					SELECT 1 FROM ledger_entries l
					WHERE l.rental_id = r.id AND l.entry_type = 'rental_payment'
				)`,
		},
	}

	for _, q := range queries {
		var count int64
		if err := b.db.WithContext(ctx).Raw(q.query).Scan(&count).Error; err != nil {
			return err
		}
		b.gauge.WithLabelValues(q.kind).Set(float64(count))
	}
	return nil
}
