package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ExportInterval   time.Duration
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	checkoutSessions   metric.Int64Counter
	paymentIntents     metric.Int64Counter
	webhookEvents      metric.Int64Counter
	ledgerEntries      metric.Int64Counter
	payeeAccounts      metric.Int64Counter
	payouts            metric.Int64Counter
	reconciliation     metric.Int64Counter
	persistenceFailure metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", interval),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "rigmarket"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.checkoutSessions, "rigmarket_checkout_sessions_total", "Checkout session attempts by outcome."},
		{&m.paymentIntents, "rigmarket_rental_payment_intents_total", "Rental payment intent attempts by outcome."},
		{&m.webhookEvents, "rigmarket_webhook_events_total", "Webhook deliveries by provider, event type and outcome."},
		{&m.ledgerEntries, "rigmarket_ledger_entries_total", "Ledger entries written by entry type."},
		{&m.payeeAccounts, "rigmarket_payee_accounts_total", "Payee provisioning attempts by outcome."},
		{&m.payouts, "rigmarket_payout_transfers_total", "Payout transfer dispatches by outcome."},
		{&m.reconciliation, "rigmarket_reconciliation_candidates_total", "Records flagged for manual reconciliation."},
		{&m.persistenceFailure, "rigmarket_persistence_failures_total", "Local writes that failed after a successful gateway call."},
		{&m.rateLimitDenied, "rigmarket_rate_limit_denied_total", "Requests rejected by the rate limiter."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	return m, nil
}

// RecordCheckoutSession increments checkout session counts.
func (m *Metrics) RecordCheckoutSession(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.checkoutSessions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPaymentIntent(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.paymentIntents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent increments webhook event counts.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, entryType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("entry_type", strings.TrimSpace(entryType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPayeeAccount(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.payeeAccounts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPayoutTransfer(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.payouts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliationCandidate counts records a human should look at.
func (m *Metrics) RecordReconciliationCandidate(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.reconciliation.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPersistenceFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.persistenceFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Ids (buyer, rental, owner, event) are never metric labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"method":      {},
	"route":       {},
	"status_code": {},
	"mode":        {},
	"provider":    {},
	"event_type":  {},
	"entry_type":  {},
	"operation":   {},
	"outcome":     {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
