package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/clock"
	"github.com/smallbiznis/rigmarket/internal/gateway"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"github.com/smallbiznis/rigmarket/internal/gateway/stripe"
	"github.com/smallbiznis/rigmarket/internal/gateway/stripe/stripetest"
	"github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"github.com/smallbiznis/rigmarket/internal/webhook/repository"
	"github.com/smallbiznis/rigmarket/internal/webhook/service"
	"github.com/smallbiznis/rigmarket/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordingHandler writes one payer profile per handled event so tests can
// observe whether its transaction committed.
type recordingHandler struct {
	types []gatewaydomain.EventType
	calls int
	fail  error
}

func (h *recordingHandler) EventTypes() []gatewaydomain.EventType { return h.types }

func (h *recordingHandler) Handle(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event) error {
	h.calls++
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO payer_profiles (id, email, provider, external_customer_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		h.calls, evt.ID+"@example.com", "stripe", "cus_"+evt.ID, time.Now(),
	).Error; err != nil {
		return err
	}
	return h.fail
}

type fixture struct {
	svc     domain.Service
	db      *gorm.DB
	handler *recordingHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	database := dbtest.Open(t)
	adapter := stripe.New(stripe.Config{WebhookSecret: stripetest.WebhookSecret}, zap.NewNop())
	handler := &recordingHandler{types: []gatewaydomain.EventType{gatewaydomain.EventTypePaymentSucceeded}}

	svc := service.NewService(service.Params{
		DB:       database,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)),
		Registry: gateway.NewRegistry(adapter),
		Repo:     repository.Provide(),
		Handlers: []domain.Handler{handler},
	})
	return &fixture{svc: svc, db: database, handler: handler}
}

func succeeded(id string) []byte {
	return stripetest.PaymentIntentSucceeded(id, "pi_"+id, "1", 10000)
}

func TestIngestProcessesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := succeeded("evt_1")

	result, err := f.svc.Ingest(ctx, "stripe", payload, stripetest.SignedHeaders(stripetest.WebhookSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, "evt_1", result.EventID)
	assert.Equal(t, string(gatewaydomain.EventTypePaymentSucceeded), result.EventType)

	result, err = f.svc.Ingest(ctx, "stripe", payload, stripetest.SignedHeaders(stripetest.WebhookSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, result.Outcome)

	assert.Equal(t, 1, f.handler.calls)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM payer_profiles`))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db,
		`SELECT COUNT(*) FROM webhook_events WHERE event_id = 'evt_1' AND processed_at IS NOT NULL AND attempts = 1`))
}

func TestIngestDefaultsToPrimaryProvider(t *testing.T) {
	f := newFixture(t)
	payload := succeeded("evt_default")

	result, err := f.svc.Ingest(context.Background(), "", payload, stripetest.SignedHeaders(stripetest.WebhookSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM webhook_events WHERE provider = 'stripe'`))
}

func TestIngestRejectsBadSignatureWithoutRecording(t *testing.T) {
	f := newFixture(t)
	payload := succeeded("evt_forged")

	_, err := f.svc.Ingest(context.Background(), "stripe", payload, stripetest.SignedHeaders("whsec_other", payload))
	require.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)

	_, err = f.svc.Ingest(context.Background(), "stripe", payload, http.Header{})
	require.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)

	assert.Equal(t, 0, f.handler.calls)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM webhook_events`))
}

func TestIngestUnknownProvider(t *testing.T) {
	f := newFixture(t)
	payload := succeeded("evt_2")

	_, err := f.svc.Ingest(context.Background(), "adyen", payload, stripetest.SignedHeaders(stripetest.WebhookSecret, payload))
	assert.ErrorIs(t, err, gatewaydomain.ErrProviderNotFound)
}

func TestIngestAcknowledgesUnhandledEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unsupported := stripetest.Payload("evt_customer", "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	result, err := f.svc.Ingest(ctx, "stripe", unsupported, stripetest.SignedHeaders(stripetest.WebhookSecret, unsupported))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)

	// Mapped by the gateway but without a registered handler.
	failed := stripetest.PaymentIntentFailed("evt_failed", "pi_1", "1", 10000)
	result, err = f.svc.Ingest(ctx, "stripe", failed, stripetest.SignedHeaders(stripetest.WebhookSecret, failed))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)

	assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM webhook_events`))
}

func TestIngestHandlerFailureRollsBackAndAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := succeeded("evt_retry")
	f.handler.fail = errors.New("ledger unavailable")

	_, err := f.svc.Ingest(ctx, "stripe", payload, stripetest.SignedHeaders(stripetest.WebhookSecret, payload))
	require.Error(t, err)
	var perr *domain.ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "evt_retry", perr.EventID)

	assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM payer_profiles`))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db,
		`SELECT COUNT(*) FROM webhook_events WHERE processed_at IS NULL AND attempts = 1 AND processing_error = 'ledger unavailable'`))

	f.handler.fail = nil
	result, err := f.svc.Ingest(ctx, "stripe", payload, stripetest.SignedHeaders(stripetest.WebhookSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM payer_profiles`))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db,
		`SELECT COUNT(*) FROM webhook_events WHERE processed_at IS NOT NULL AND attempts = 2 AND processing_error IS NULL`))
}

func TestIngestRejectsEmptyPayload(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), "stripe", nil, http.Header{})
	assert.ErrorIs(t, err, domain.ErrEmptyPayload)
}
