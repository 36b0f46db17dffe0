package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	checkoutrepo "github.com/smallbiznis/rigmarket/internal/checkout/repository"
	"github.com/smallbiznis/rigmarket/internal/clock"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"github.com/smallbiznis/rigmarket/internal/gateway/mocks"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/rigmarket/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/rigmarket/internal/ledger/service"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	payeerepo "github.com/smallbiznis/rigmarket/internal/payee/repository"
	payeeservice "github.com/smallbiznis/rigmarket/internal/payee/service"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	rentalrepo "github.com/smallbiznis/rigmarket/internal/rental/repository"
	schedtesting "github.com/smallbiznis/rigmarket/internal/scheduler/testing"
	webhookdomain "github.com/smallbiznis/rigmarket/internal/webhook/domain"
	webhookrepo "github.com/smallbiznis/rigmarket/internal/webhook/repository"
	"github.com/smallbiznis/rigmarket/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testOwnerID = "owner-1"

type jobFixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	gateway *mocks.MockGateway
	ledger  ledgerdomain.Service
	payees  payeedomain.Repository
	rentals rentaldomain.Repository
	orders  checkoutdomain.Repository
	events  webhookdomain.Repository
	aging   *schedtesting.TimeAccelerator
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	database := dbtest.Open(t)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	gw := mocks.NewMockGateway(gomock.NewController(t))

	return &jobFixture{
		db:      database,
		node:    node,
		clock:   clk,
		gateway: gw,
		ledger: ledgerservice.NewService(ledgerservice.Params{
			DB: database, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide(),
		}),
		payees:  payeerepo.Provide(),
		rentals: rentalrepo.Provide(),
		orders:  checkoutrepo.Provide(),
		events:  webhookrepo.Provide(),
		aging:   schedtesting.NewTimeAccelerator(database, clk.Now),
	}
}

func (f *jobFixture) scheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	log := zap.NewNop()
	payeeSvc := payeeservice.NewService(payeeservice.Params{
		DB: f.db, Log: log, GenID: f.node, Clock: f.clock, Gateway: f.gateway, Repo: f.payees,
	})
	s, err := New(Params{
		DB:            f.db,
		Log:           log,
		GenID:         f.node,
		Clock:         f.clock,
		Gateway:       f.gateway,
		LedgerSvc:     f.ledger,
		PayeeSvc:      payeeSvc,
		Rentals:       f.rentals,
		Orders:        f.orders,
		WebhookEvents: f.events,
		Config:        cfg,
	})
	require.NoError(t, err)
	return s
}

func (f *jobFixture) seedPayee(t *testing.T, payoutEnabled bool) {
	t.Helper()
	f.seedPayeeFor(t, testOwnerID, "acct_owner1", payoutEnabled)
}

func (f *jobFixture) seedPayeeFor(t *testing.T, ownerID, accountID string, payoutEnabled bool) {
	t.Helper()
	now := f.clock.Now()
	_, err := f.payees.InsertIfAbsent(context.Background(), f.db, &payeedomain.PayeeAccount{
		ID: f.node.Generate(), OwnerID: ownerID, Provider: "stripe", ExternalAccountID: accountID,
		Email: ownerID + "@example.com", DisplayName: "Owner", Country: "US",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	if payoutEnabled {
		_, err = f.payees.UpdateCapabilities(context.Background(), f.db, &gatewaydomain.AccountUpdate{
			AccountID: accountID, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true,
			OccurredAt: now,
		}, now)
		require.NoError(t, err)
	}
}

func (f *jobFixture) seedPayout(t *testing.T) ledgerdomain.LedgerEntry {
	t.Helper()
	return f.seedPayoutFor(t, testOwnerID)
}

func (f *jobFixture) seedPayoutFor(t *testing.T, ownerID string) ledgerdomain.LedgerEntry {
	t.Helper()
	rentalID := f.node.Generate()
	inserted, err := f.ledger.RecordOwnerPayout(context.Background(), nil, ledgerdomain.RecordPayoutRequest{
		RentalID:    rentalID,
		OwnerID:     ownerID,
		Currency:    "USD",
		Total:       5250,
		PlatformFee: 250,
		OwnerPayout: 5000,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	entries, err := f.ledger.ListByRental(context.Background(), rentalID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func (f *jobFixture) seedProcessingOrder(t *testing.T, sessionID string) *checkoutdomain.Order {
	t.Helper()
	now := f.clock.Now()
	order := &checkoutdomain.Order{
		ID:                f.node.Generate(),
		BuyerID:           "buyer-1",
		PayerEmail:        "buyer@example.com",
		Mode:              checkoutdomain.ModePayment,
		Currency:          "USD",
		TotalAmount:       1999,
		Status:            checkoutdomain.OrderStatusProcessing,
		LineItems:         datatypes.JSON(`[]`),
		ExternalSessionID: &sessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.orders.InsertOrder(context.Background(), f.db, order))
	return order
}

func (f *jobFixture) seedPendingRental(t *testing.T, paymentID string) *rentaldomain.Rental {
	t.Helper()
	now := f.clock.Now()
	rental := &rentaldomain.Rental{
		ID:                f.node.Generate(),
		MachineID:         "lathe-2",
		RenterID:          "renter-1",
		OwnerID:           testOwnerID,
		StartDate:         now.AddDate(0, 0, 3),
		EndDate:           now.AddDate(0, 0, 4),
		DailyRate:         2500,
		Currency:          "USD",
		Status:            rentaldomain.StatusPending,
		PaymentStatus:     rentaldomain.PaymentStatusPending,
		ExternalPaymentID: &paymentID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.rentals.Insert(context.Background(), f.db, rental))
	return rental
}

func TestPayoutDispatchAttachesTransfer(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayee(t, true)
	entry := f.seedPayout(t)

	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gatewaydomain.TransferRequest{
			Amount:               5000,
			Currency:             "USD",
			DestinationAccountID: "acct_owner1",
			Metadata: map[string]string{
				"ledger_entry_id": entry.ID.String(),
				"rental_id":       entry.RentalID.String(),
			},
			IdempotencyKey: "payout:" + entry.ID.String(),
		}).
		Return(gatewaydomain.Transfer{ID: "tr_1"}, nil).
		Times(1)

	s := f.scheduler(t, Config{})
	require.NoError(t, s.PayoutDispatchJob(context.Background()))

	info, err := f.aging.GetPayoutInfo(context.Background(), entry.ID)
	require.NoError(t, err)
	require.NotNil(t, info.ExternalTransferID)
	assert.Equal(t, "tr_1", *info.ExternalTransferID)
	assert.Equal(t, string(ledgerdomain.EntryStatusPending), info.Status)

	// Attached entries are not dispatched again.
	require.NoError(t, s.PayoutDispatchJob(context.Background()))
}

func TestPayoutDispatchDefersUntilPayoutsEnabled(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayee(t, false)
	entry := f.seedPayout(t)

	s := f.scheduler(t, Config{})
	require.NoError(t, s.PayoutDispatchJob(context.Background()))

	info, err := f.aging.GetPayoutInfo(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Nil(t, info.ExternalTransferID)
}

func TestPayoutDispatchDefersWithoutPayeeAccount(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayout(t)

	s := f.scheduler(t, Config{})
	require.NoError(t, s.PayoutDispatchJob(context.Background()))
}

func TestPayoutDispatchStopsWhenGatewayNotConfigured(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayee(t, true)
	f.seedPayout(t)
	f.seedPayout(t)

	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		Return(gatewaydomain.Transfer{}, gatewaydomain.ErrNotConfigured).
		Times(1)

	s := f.scheduler(t, Config{})
	require.NoError(t, s.PayoutDispatchJob(context.Background()))
}

func TestPayoutDispatchGatewayErrorLeavesEntryForRetry(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayee(t, true)
	entry := f.seedPayout(t)

	gatewayErr := &gatewaydomain.GatewayError{Op: "create_transfer", Code: "rate_limit", StatusCode: 429, Retryable: true, Err: errors.New("slow down")}
	first := f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		Return(gatewaydomain.Transfer{}, gatewayErr)
	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gatewaydomain.TransferRequest) (gatewaydomain.Transfer, error) {
			assert.Equal(t, "payout:"+entry.ID.String(), req.IdempotencyKey)
			return gatewaydomain.Transfer{ID: "tr_retry"}, nil
		}).
		After(first)

	s := f.scheduler(t, Config{})
	err := s.PayoutDispatchJob(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gatewayErr)

	require.NoError(t, s.PayoutDispatchJob(context.Background()))
	info, err := f.aging.GetPayoutInfo(context.Background(), entry.ID)
	require.NoError(t, err)
	require.NotNil(t, info.ExternalTransferID)
	assert.Equal(t, "tr_retry", *info.ExternalTransferID)
}

func TestPayoutDispatchReachesEligibleOwnerBehindDeferredEntries(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayeeFor(t, testOwnerID, "acct_owner1", false)
	f.seedPayeeFor(t, "owner-2", "acct_owner2", true)
	// A full batch of older entries whose owner cannot be paid yet.
	f.seedPayoutFor(t, testOwnerID)
	f.seedPayoutFor(t, testOwnerID)
	eligible := f.seedPayoutFor(t, "owner-2")

	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gatewaydomain.TransferRequest) (gatewaydomain.Transfer, error) {
			assert.Equal(t, "acct_owner2", req.DestinationAccountID)
			assert.Equal(t, "payout:"+eligible.ID.String(), req.IdempotencyKey)
			return gatewaydomain.Transfer{ID: "tr_owner2"}, nil
		}).
		Times(1)

	s := f.scheduler(t, Config{BatchSize: 2})
	require.NoError(t, s.PayoutDispatchJob(context.Background()))

	info, err := f.aging.GetPayoutInfo(context.Background(), eligible.ID)
	require.NoError(t, err)
	require.NotNil(t, info.ExternalTransferID)
	assert.Equal(t, "tr_owner2", *info.ExternalTransferID)
}

func TestPayoutDispatchFailingEntryDoesNotBlockLaterEntries(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayee(t, true)
	failing := f.seedPayout(t)
	later := f.seedPayout(t)

	gatewayErr := &gatewaydomain.GatewayError{Op: "create_transfer", Code: "account_invalid", StatusCode: 400, Err: errors.New("bad destination")}
	f.gateway.EXPECT().
		CreateTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gatewaydomain.TransferRequest) (gatewaydomain.Transfer, error) {
			if req.IdempotencyKey == "payout:"+failing.ID.String() {
				return gatewaydomain.Transfer{}, gatewayErr
			}
			return gatewaydomain.Transfer{ID: "tr_later"}, nil
		}).
		Times(2)

	s := f.scheduler(t, Config{BatchSize: 1})
	require.ErrorIs(t, s.PayoutDispatchJob(context.Background()), gatewayErr)
	require.NoError(t, s.PayoutDispatchJob(context.Background()))

	info, err := f.aging.GetPayoutInfo(context.Background(), later.ID)
	require.NoError(t, err)
	require.NotNil(t, info.ExternalTransferID)
	assert.Equal(t, "tr_later", *info.ExternalTransferID)

	info, err = f.aging.GetPayoutInfo(context.Background(), failing.ID)
	require.NoError(t, err)
	assert.Nil(t, info.ExternalTransferID)
}

func TestSweepDisabledByDefault(t *testing.T) {
	f := newJobFixture(t)
	order := f.seedProcessingOrder(t, "cs_old")
	require.NoError(t, f.aging.AgeOrder(context.Background(), order.ID, 48*time.Hour))

	s := f.scheduler(t, Config{})
	require.NoError(t, s.AbandonedCheckoutSweepJob(context.Background()))
}

func TestSweepExpiresOnlyAbandonedSessions(t *testing.T) {
	f := newJobFixture(t)
	old := f.seedProcessingOrder(t, "cs_old")
	f.seedProcessingOrder(t, "cs_fresh")
	closed := f.seedProcessingOrder(t, "cs_closed")
	require.NoError(t, f.aging.AgeOrder(context.Background(), old.ID, 3*time.Hour))
	require.NoError(t, f.aging.AgeOrder(context.Background(), closed.ID, 3*time.Hour))

	f.gateway.EXPECT().ExpireCheckoutSession(gomock.Any(), "cs_old").Return(nil).Times(1)
	f.gateway.EXPECT().ExpireCheckoutSession(gomock.Any(), "cs_closed").Return(gatewaydomain.ErrSessionNotExpired).Times(1)

	s := f.scheduler(t, Config{SweepAbandonedAfter: 2 * time.Hour})
	require.NoError(t, s.AbandonedCheckoutSweepJob(context.Background()))

	// The expiry webhook cancels the order; the sweep leaves it alone.
	stored, err := f.orders.FindOrderByID(context.Background(), f.db, old.ID)
	require.NoError(t, err)
	assert.Equal(t, checkoutdomain.OrderStatusProcessing, stored.Status)
}

func TestSweepMovesPastSessionsTheGatewayKeepsOpen(t *testing.T) {
	f := newJobFixture(t)
	closed := f.seedProcessingOrder(t, "cs_closed")
	old := f.seedProcessingOrder(t, "cs_old")
	require.NoError(t, f.aging.AgeOrder(context.Background(), closed.ID, 3*time.Hour))
	require.NoError(t, f.aging.AgeOrder(context.Background(), old.ID, 3*time.Hour))

	first := f.gateway.EXPECT().ExpireCheckoutSession(gomock.Any(), "cs_closed").Return(gatewaydomain.ErrSessionNotExpired)
	f.gateway.EXPECT().ExpireCheckoutSession(gomock.Any(), "cs_old").Return(nil).After(first).Times(1)

	s := f.scheduler(t, Config{SweepAbandonedAfter: 2 * time.Hour, BatchSize: 1})
	require.NoError(t, s.AbandonedCheckoutSweepJob(context.Background()))
	require.NoError(t, s.AbandonedCheckoutSweepJob(context.Background()))
}

func TestReconcileSkipsFreshRentalsInQuery(t *testing.T) {
	f := newJobFixture(t)
	f.seedPendingRental(t, "pi_fresh")
	lost := f.seedPendingRental(t, "pi_lost")
	require.NoError(t, f.aging.AgeRental(context.Background(), lost.ID, time.Hour))

	f.gateway.EXPECT().GetPaymentIntent(gomock.Any(), "pi_lost").
		Return(gatewaydomain.PaymentIntent{ID: "pi_lost", Amount: 5250, Status: gatewaydomain.PaymentIntentStatusSucceeded}, nil).
		Times(1)

	s := f.scheduler(t, Config{BatchSize: 1})
	ctx, run, _ := s.ensureJobRun(context.Background(), JobReconcile, 1)
	require.NoError(t, s.ReconcileJob(ctx))
	assert.Equal(t, 1, run.processedCount)
}

func TestReconcileReportsWithoutMutating(t *testing.T) {
	f := newJobFixture(t)
	lost := f.seedPendingRental(t, "pi_lost")
	pending := f.seedPendingRental(t, "pi_open")
	fresh := f.seedPendingRental(t, "pi_fresh")
	require.NoError(t, f.aging.AgeRental(context.Background(), lost.ID, time.Hour))
	require.NoError(t, f.aging.AgeRental(context.Background(), pending.ID, time.Hour))

	f.gateway.EXPECT().GetPaymentIntent(gomock.Any(), "pi_lost").
		Return(gatewaydomain.PaymentIntent{ID: "pi_lost", Amount: 5250, Status: gatewaydomain.PaymentIntentStatusSucceeded}, nil)
	f.gateway.EXPECT().GetPaymentIntent(gomock.Any(), "pi_open").
		Return(gatewaydomain.PaymentIntent{ID: "pi_open", Status: gatewaydomain.PaymentIntentStatusProcessing}, nil)

	_, err := f.events.Insert(context.Background(), f.db, &webhookdomain.EventRecord{
		ID: f.node.Generate(), Provider: "stripe", EventID: "evt_stuck", EventType: "payment.succeeded",
		Payload: datatypes.JSON(`{}`), Attempts: 3, ReceivedAt: f.clock.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, f.aging.AgeWebhookEvent(context.Background(), "stripe", "evt_stuck", time.Hour))

	s := f.scheduler(t, Config{})
	ctx, run, _ := s.ensureJobRun(context.Background(), JobReconcile, 10)
	require.NoError(t, s.ReconcileJob(ctx))
	// One lost payment plus one stuck delivery.
	assert.Equal(t, 2, run.processedCount)

	for _, id := range []snowflake.ID{lost.ID, pending.ID, fresh.ID} {
		stored, err := f.rentals.FindByID(context.Background(), f.db, id)
		require.NoError(t, err)
		assert.Equal(t, rentaldomain.PaymentStatusPending, stored.PaymentStatus)
	}
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	f := newJobFixture(t)
	f.seedPayee(t, true)
	f.seedPayout(t)
	order := f.seedProcessingOrder(t, "cs_old")
	require.NoError(t, f.aging.AgeOrder(context.Background(), order.ID, 3*time.Hour))

	// Only the sweep runs, so CreateTransfer must not be called.
	f.gateway.EXPECT().ExpireCheckoutSession(gomock.Any(), "cs_old").Return(nil).Times(1)

	s := f.scheduler(t, Config{
		EnabledJobs:         []string{JobAbandonedCheckoutSweep},
		SweepAbandonedAfter: time.Hour,
	})
	require.NoError(t, s.RunOnce(context.Background()))
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
