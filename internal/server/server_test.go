package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	"github.com/smallbiznis/rigmarket/internal/observability"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	"github.com/smallbiznis/rigmarket/internal/validation"
	webhookdomain "github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type fakeCheckoutService struct {
	checkoutdomain.Service
	lastReq checkoutdomain.CreateSessionRequest
	err     error
	order   *checkoutdomain.Order
}

func (f *fakeCheckoutService) CreateSession(ctx context.Context, req checkoutdomain.CreateSessionRequest) (checkoutdomain.CreateSessionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return checkoutdomain.CreateSessionResponse{}, f.err
	}
	return checkoutdomain.CreateSessionResponse{
		OrderID:           "101",
		ExternalSessionID: "cs_test_1",
		RedirectURL:       "https://checkout.stripe.com/c/pay/cs_test_1",
	}, nil
}

func (f *fakeCheckoutService) GetOrder(ctx context.Context, id string) (checkoutdomain.Order, error) {
	if f.order == nil {
		return checkoutdomain.Order{}, checkoutdomain.ErrNotFound
	}
	return *f.order, nil
}

type fakeRentalService struct {
	rentaldomain.Service
	err error
}

func (f *fakeRentalService) CreatePaymentIntent(ctx context.Context, req rentaldomain.PaymentIntentRequest) (rentaldomain.PaymentIntentResponse, error) {
	if f.err != nil {
		return rentaldomain.PaymentIntentResponse{}, f.err
	}
	return rentaldomain.PaymentIntentResponse{ExternalPaymentID: "pi_1", ClientSecret: "pi_1_secret"}, nil
}

func (f *fakeRentalService) GetByID(ctx context.Context, id string) (rentaldomain.Rental, error) {
	total, fee, payout := int64(5250), int64(250), int64(5000)
	return rentaldomain.Rental{
		ID:            snowflake.ID(77),
		MachineID:     "excavator-7",
		OwnerID:       "owner-1",
		StartDate:     time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC),
		DailyRate:     2500,
		Currency:      "USD",
		Status:        rentaldomain.StatusPending,
		PaymentStatus: rentaldomain.PaymentStatusPending,
		TotalAmount:   &total,
		PlatformFee:   &fee,
		OwnerPayout:   &payout,
	}, nil
}

type fakePayeeService struct {
	payeedomain.Service
	created    bool
	onboarding payeedomain.OnboardingLinkRequest
}

func (f *fakePayeeService) Provision(ctx context.Context, req payeedomain.ProvisionRequest) (payeedomain.ProvisionResponse, error) {
	return payeedomain.ProvisionResponse{ExternalAccountID: "acct_1", Created: f.created}, nil
}

func (f *fakePayeeService) CreateOnboardingLink(ctx context.Context, req payeedomain.OnboardingLinkRequest) (payeedomain.OnboardingLinkResponse, error) {
	f.onboarding = req
	return payeedomain.OnboardingLinkResponse{OnboardingURL: "https://connect.stripe.com/setup/acct_1"}, nil
}

type fakeLedgerService struct {
	ledgerdomain.Service
	lastReq ledgerdomain.ListOwnerEntriesRequest
}

func (f *fakeLedgerService) ListByOwner(ctx context.Context, req ledgerdomain.ListOwnerEntriesRequest) (ledgerdomain.ListOwnerEntriesResponse, error) {
	f.lastReq = req
	if req.PageToken == "garbage" {
		return ledgerdomain.ListOwnerEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
	}
	return ledgerdomain.ListOwnerEntriesResponse{
		Entries: []ledgerdomain.LedgerEntry{{ID: 1, OwnerID: req.OwnerID, EntryType: ledgerdomain.EntryTypeOwnerPayout, Amount: 5000}},
	}, nil
}

type fakeWebhookService struct {
	provider string
	payload  []byte
	err      error
}

func (f *fakeWebhookService) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (webhookdomain.Result, error) {
	f.provider = provider
	f.payload = payload
	if f.err != nil {
		return webhookdomain.Result{}, f.err
	}
	return webhookdomain.Result{EventID: "evt_1", EventType: "payment.succeeded", Outcome: webhookdomain.OutcomeProcessed}, nil
}

type testServer struct {
	*Server
	checkout *fakeCheckoutService
	rentals  *fakeRentalService
	payees   *fakePayeeService
	ledger   *fakeLedgerService
	webhooks *fakeWebhookService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		checkout: &fakeCheckoutService{},
		rentals:  &fakeRentalService{},
		payees:   &fakePayeeService{},
		ledger:   &fakeLedgerService{},
		webhooks: &fakeWebhookService{},
	}
	ts.Server = NewServer(ServerParams{
		Gin:         NewEngine(observability.Config{}, nil),
		Log:         zap.NewNop(),
		CheckoutSvc: ts.checkout,
		RentalSvc:   ts.rentals,
		PayeeSvc:    ts.payees,
		LedgerSvc:   ts.ledger,
		WebhookSvc:  ts.webhooks,
	})
	ts.RegisterRoutes()
	return ts
}

func (ts *testServer) do(method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

const checkoutBody = `{"buyer_id":"buyer-1","payer_email":"jane@example.com","success_url":"https://shop.example.com/ok","cancel_url":"https://shop.example.com/cancel","mode":"payment","line_items":[{"product_ref":"sku-1","name":"Drill","quantity":1,"unit_amount":2000,"currency":"USD"}]}`

func TestCreateCheckoutSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/checkout-sessions", checkoutBody)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp checkoutdomain.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cs_test_1", resp.ExternalSessionID)
	assert.Equal(t, "jane@example.com", ts.checkout.lastReq.PayerEmail)
	require.Len(t, ts.checkout.lastReq.LineItems, 1)
}

func TestCreateCheckoutSessionRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/checkout-sessions", `{"buyer_id":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "request", payload.Errors[0].Field)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "field validation",
			err:        validation.New(checkoutdomain.ErrInvalidRequest, validation.FieldError{Field: "payer_email", Code: "invalid_email", Message: "bad"}),
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:       "zero amount",
			err:        checkoutdomain.ErrZeroAmount,
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:       "gateway rejected",
			err:        &gatewaydomain.GatewayError{Op: "create_checkout_session", Code: "card_declined", Err: errors.New("declined")},
			wantStatus: http.StatusBadGateway,
			wantType:   "gateway_error",
		},
		{
			name:       "gateway timeout",
			err:        &gatewaydomain.GatewayError{Op: "create_checkout_session", Code: gatewaydomain.CodeTimeout, Retryable: true, Err: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
			wantType:   "gateway_error",
		},
		{
			name:       "not configured",
			err:        gatewaydomain.ErrNotConfigured,
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "config_error",
		},
		{
			name:       "persistence after gateway success",
			err:        db.NewPersistenceError("checkout.mark_processing", errors.New("disk full"), map[string]string{"external_session_id": "cs_1"}),
			wantStatus: http.StatusInternalServerError,
			wantType:   "internal_error",
		},
		{
			name:       "resume of non-pending order",
			err:        checkoutdomain.ErrOrderNotPending,
			wantStatus: http.StatusConflict,
			wantType:   "conflict",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.checkout.err = tc.err

			rec := ts.do(http.MethodPost, "/checkout-sessions", checkoutBody)

			require.Equal(t, tc.wantStatus, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, tc.wantType, payload.Type)
			assert.NotContains(t, rec.Body.String(), "disk full")
		})
	}
}

func TestRateLimitedCheckoutSetsRetryAfter(t *testing.T) {
	ts := newTestServer(t)
	ts.checkout.err = &checkoutdomain.RateLimitError{RetryAfter: 2500 * time.Millisecond}

	rec := ts.do(http.MethodPost, "/checkout-sessions", checkoutBody)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/orders/42", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	sessionID := "cs_test_1"
	ts.checkout.order = &checkoutdomain.Order{
		ID:                snowflake.ID(42),
		BuyerID:           "buyer-1",
		Mode:              checkoutdomain.ModePayment,
		Currency:          "USD",
		TotalAmount:       2000,
		Status:            checkoutdomain.OrderStatusProcessing,
		LineItems:         datatypes.JSON(`[{"product_ref":"sku-1","name":"Drill","quantity":1,"unit_amount":2000,"currency":"USD"}]`),
		ExternalSessionID: &sessionID,
	}
	rec = ts.do(http.MethodGet, "/orders/42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"processing"`)
	assert.Contains(t, rec.Body.String(), `"external_session_id":"cs_test_1"`)
}

func TestRentalRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/rentals/77", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_amount":5250`)
	assert.Contains(t, rec.Body.String(), `"start_date":"2026-07-10"`)

	rec = ts.do(http.MethodPost, "/rental-payment-intents", `{"rental_id":"77","amount_minor_units":5250,"currency":"USD"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"client_secret":"pi_1_secret"`)

	ts.rentals.err = rentaldomain.ErrAlreadyPaid
	rec = ts.do(http.MethodPost, "/rental-payment-intents", `{"rental_id":"77","amount_minor_units":5250,"currency":"USD"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.rentals.err = rentaldomain.ErrAmountMismatch
	rec = ts.do(http.MethodPost, "/rental-payment-intents", `{"rental_id":"77","amount_minor_units":1,"currency":"USD"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decodeError(t, rec).Errors[0].Field)
}

func TestPayeeAccountRoutes(t *testing.T) {
	ts := newTestServer(t)
	body := `{"payee_id":"owner-1","email":"owner@example.com","display_name":"Owner","country":"US"}`

	ts.payees.created = true
	rec := ts.do(http.MethodPost, "/payee-accounts", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	ts.payees.created = false
	rec = ts.do(http.MethodPost, "/payee-accounts", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"external_account_id":"acct_1"`)

	rec = ts.do(http.MethodPost, "/payee-accounts/owner-1/onboarding-link", `{"refresh_url":"https://app.example.com/r","return_url":"https://app.example.com/done"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-1", ts.payees.onboarding.OwnerID)

	rec = ts.do(http.MethodGet, "/payee-accounts/owner-1/ledger-entries?page_size=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-1", ts.ledger.lastReq.OwnerID)
	assert.Equal(t, int32(10), ts.ledger.lastReq.PageSize)

	rec = ts.do(http.MethodGet, "/payee-accounts/owner-1/ledger-entries?page_token=garbage", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stripe", ts.webhooks.provider)
	assert.Equal(t, `{"id":"evt_1"}`, string(ts.webhooks.payload))
	assert.Contains(t, rec.Body.String(), `"outcome":"processed"`)

	rec = ts.do(http.MethodPost, "/webhooks", `{"id":"evt_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", ts.webhooks.provider)

	ts.webhooks.err = gatewaydomain.ErrInvalidSignature
	rec = ts.do(http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "signature_error", decodeError(t, rec).Type)

	ts.webhooks.err = gatewaydomain.ErrProviderNotFound
	rec = ts.do(http.MethodPost, "/webhooks/paypal", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.webhooks.err = &webhookdomain.ProcessingError{EventID: "evt_1", EventType: "payment.succeeded", Err: errors.New("boom")}
	rec = ts.do(http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookBodyLimit(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/webhooks/stripe", strings.Repeat("x", maxWebhookBody+1))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ts.webhooks.payload)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(&gatewaydomain.GatewayError{Op: "create_transfer", Code: "rate_limited", Err: errors.New("x")})
	assert.Equal(t, "gateway_error", kind)
	assert.Equal(t, "rate_limited", code)

	kind, code = classifyErrorForLog(db.NewPersistenceError("payout.attach_transfer", errors.New("x"), nil))
	assert.Equal(t, "persistence_error", kind)
	assert.Equal(t, "payout.attach_transfer", code)

	kind, _ = classifyErrorForLog(checkoutdomain.ErrNotFound)
	assert.Equal(t, "not_found", kind)
}
