package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/smallbiznis/rigmarket/internal/gateway/domain"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	HTTPTimeout   time.Duration
	MaxRetries    int64
	// BackendURL overrides the API host.
	BackendURL string
}

type Adapter struct {
	api           *client.API
	webhookSecret string
	log           *zap.Logger
	tracer        trace.Tracer
}

// Provide builds the adapter from application config.
func Provide(cfg config.Config, log *zap.Logger) *Adapter {
	return New(Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		HTTPTimeout:   cfg.Stripe.HTTPTimeout,
		MaxRetries:    cfg.Stripe.MaxRetries,
		BackendURL:    cfg.Stripe.APIBaseURL,
	}, log)
}

func New(cfg Config, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("gateway.stripe")

	a := &Adapter{
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		log:           log,
		tracer:        otel.Tracer("rigmarket/gateway/stripe"),
	}

	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		log.Warn("stripe secret key is not configured, outbound gateway calls will fail")
		return a
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     log.Sugar(),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}

	a.api = &client.API{}
	a.api.Init(key, stripe.NewBackendsWithConfig(backendCfg))
	return a
}

func (a *Adapter) Provider() string {
	return domain.ProviderStripe
}

func (a *Adapter) FindOrCreatePayer(ctx context.Context, req domain.PayerRequest) (domain.Payer, error) {
	var payer domain.Payer
	err := a.call(ctx, "customers.find_or_create", func(ctx context.Context) error {
		listParams := &stripe.CustomerListParams{Email: stripe.String(req.Email)}
		listParams.Context = ctx
		listParams.Limit = stripe.Int64(1)
		iter := a.api.Customers.List(listParams)
		if iter.Next() {
			existing := iter.Customer()
			payer = domain.Payer{ExternalCustomerID: existing.ID, Email: existing.Email}
			return nil
		}
		if err := iter.Err(); err != nil {
			return err
		}

		params := &stripe.CustomerParams{Email: stripe.String(req.Email)}
		params.Context = ctx
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		created, err := a.api.Customers.New(params)
		if err != nil {
			return err
		}
		payer = domain.Payer{ExternalCustomerID: created.ID, Email: created.Email}
		return nil
	})
	return payer, err
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	var session domain.CheckoutSession
	err := a.call(ctx, "checkout_sessions.create", func(ctx context.Context) error {
		currency := strings.ToLower(req.Currency)
		params := &stripe.CheckoutSessionParams{
			Mode:              stripe.String(string(req.Mode)),
			SuccessURL:        stripe.String(req.SuccessURL),
			CancelURL:         stripe.String(req.CancelURL),
			ClientReferenceID: stripe.String(req.OrderID),
		}
		params.Context = ctx
		if req.ExternalCustomerID != "" {
			params.Customer = stripe.String(req.ExternalCustomerID)
		}
		for _, item := range req.LineItems {
			priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			}
			if req.Mode == domain.CheckoutModeSubscription {
				priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String(item.Interval),
				}
			}
			params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
				PriceData: priceData,
				Quantity:  stripe.Int64(item.Quantity),
			})
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		switch req.Mode {
		case domain.CheckoutModePayment:
			params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: req.Metadata}
		case domain.CheckoutModeSubscription:
			params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: req.Metadata}
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}

		created, err := a.api.CheckoutSessions.New(params)
		if err != nil {
			return err
		}
		session = domain.CheckoutSession{ID: created.ID, URL: created.URL}
		if created.ExpiresAt > 0 {
			session.ExpiresAt = time.Unix(created.ExpiresAt, 0).UTC()
		}
		return nil
	}, attribute.String("checkout.mode", string(req.Mode)))
	return session, err
}

func (a *Adapter) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	return a.call(ctx, "checkout_sessions.expire", func(ctx context.Context) error {
		params := &stripe.CheckoutSessionExpireParams{}
		params.Context = ctx
		_, err := a.api.CheckoutSessions.Expire(sessionID, params)
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusBadRequest {
			// Stripe rejects expiring a session that is already complete or expired.
			return domain.ErrSessionNotExpired
		}
		return err
	})
}

func (a *Adapter) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := a.call(ctx, "payment_intents.create", func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(req.Amount),
			Currency: stripe.String(strings.ToLower(req.Currency)),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		params.Context = ctx
		if req.Description != "" {
			params.Description = stripe.String(req.Description)
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		created, err := a.api.PaymentIntents.New(params)
		if err != nil {
			return err
		}
		intent = toPaymentIntent(created)
		return nil
	})
	return intent, err
}

func (a *Adapter) GetPaymentIntent(ctx context.Context, paymentID string) (domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := a.call(ctx, "payment_intents.get", func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		found, err := a.api.PaymentIntents.Get(paymentID, params)
		if err != nil {
			return err
		}
		intent = toPaymentIntent(found)
		return nil
	})
	return intent, err
}

func (a *Adapter) CreatePayeeAccount(ctx context.Context, req domain.PayeeAccountRequest) (domain.PayeeAccount, error) {
	var account domain.PayeeAccount
	err := a.call(ctx, "accounts.create", func(ctx context.Context) error {
		params := &stripe.AccountParams{
			Type:    stripe.String(string(stripe.AccountTypeExpress)),
			Country: stripe.String(strings.ToUpper(req.Country)),
			Email:   stripe.String(req.Email),
			BusinessProfile: &stripe.AccountBusinessProfileParams{
				Name: stripe.String(req.DisplayName),
			},
			Capabilities: &stripe.AccountCapabilitiesParams{
				Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
			},
		}
		params.Context = ctx
		params.AddMetadata("owner_id", req.OwnerID)
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		created, err := a.api.Accounts.New(params)
		if err != nil {
			return err
		}
		account = toPayeeAccount(created)
		return nil
	})
	return account, err
}

func (a *Adapter) GetPayeeAccount(ctx context.Context, accountID string) (domain.PayeeAccount, error) {
	var account domain.PayeeAccount
	err := a.call(ctx, "accounts.get", func(ctx context.Context) error {
		params := &stripe.AccountParams{}
		params.Context = ctx
		found, err := a.api.Accounts.GetByID(accountID, params)
		if err != nil {
			return err
		}
		account = toPayeeAccount(found)
		return nil
	})
	return account, err
}

func (a *Adapter) CreateOnboardingLink(ctx context.Context, req domain.OnboardingLinkRequest) (domain.OnboardingLink, error) {
	var link domain.OnboardingLink
	err := a.call(ctx, "account_links.create", func(ctx context.Context) error {
		params := &stripe.AccountLinkParams{
			Account:    stripe.String(req.AccountID),
			RefreshURL: stripe.String(req.RefreshURL),
			ReturnURL:  stripe.String(req.ReturnURL),
			Type:       stripe.String("account_onboarding"),
		}
		params.Context = ctx
		created, err := a.api.AccountLinks.New(params)
		if err != nil {
			return err
		}
		link = domain.OnboardingLink{URL: created.URL}
		if created.ExpiresAt > 0 {
			link.ExpiresAt = time.Unix(created.ExpiresAt, 0).UTC()
		}
		return nil
	})
	return link, err
}

func (a *Adapter) CreateTransfer(ctx context.Context, req domain.TransferRequest) (domain.Transfer, error) {
	var transfer domain.Transfer
	err := a.call(ctx, "transfers.create", func(ctx context.Context) error {
		params := &stripe.TransferParams{
			Amount:      stripe.Int64(req.Amount),
			Currency:    stripe.String(strings.ToLower(req.Currency)),
			Destination: stripe.String(req.DestinationAccountID),
		}
		params.Context = ctx
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}
		created, err := a.api.Transfers.New(params)
		if err != nil {
			return err
		}
		transfer = domain.Transfer{ID: created.ID}
		return nil
	})
	return transfer, err
}

// call runs fn under a client span and normalizes the error.
func (a *Adapter) call(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	if a.api == nil {
		return domain.ErrNotConfigured
	}

	ctx, span := a.tracer.Start(ctx, "stripe."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attrs...)

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		a.log.Debug("stripe call succeeded", zap.String("op", op), zap.Duration("duration", time.Since(start)))
		return nil
	}
	if errors.Is(err, domain.ErrSessionNotExpired) {
		return err
	}

	gwErr := wrapError(op, err)
	span.SetStatus(codes.Error, gwErr.Code)
	span.SetAttributes(
		attribute.Bool("gateway.retryable", gwErr.Retryable),
		attribute.Int("gateway.status_code", gwErr.StatusCode),
	)
	a.log.Warn("stripe call failed",
		zap.String("op", op),
		zap.String("code", gwErr.Code),
		zap.Int("status_code", gwErr.StatusCode),
		zap.Bool("retryable", gwErr.Retryable),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	return gwErr
}

func toPaymentIntent(pi *stripe.PaymentIntent) domain.PaymentIntent {
	if pi == nil {
		return domain.PaymentIntent{}
	}
	return domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       normalizePaymentIntentStatus(pi.Status),
	}
}

func normalizePaymentIntentStatus(status stripe.PaymentIntentStatus) domain.PaymentIntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.PaymentIntentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return domain.PaymentIntentStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return domain.PaymentIntentStatusCanceled
	default:
		return domain.PaymentIntentStatusOpen
	}
}

func toPayeeAccount(acct *stripe.Account) domain.PayeeAccount {
	if acct == nil {
		return domain.PayeeAccount{}
	}
	return domain.PayeeAccount{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		BankVerified:     hasVerifiedBankAccount(acct),
	}
}

func hasVerifiedBankAccount(acct *stripe.Account) bool {
	if acct.ExternalAccounts == nil {
		return false
	}
	for _, ea := range acct.ExternalAccounts.Data {
		if ea == nil || ea.BankAccount == nil {
			continue
		}
		if isVerifiedBankStatus(string(ea.BankAccount.Status)) {
			return true
		}
	}
	return false
}

func isVerifiedBankStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(stripe.BankAccountStatusVerified), string(stripe.BankAccountStatusValidated):
		return true
	default:
		return false
	}
}

var _ domain.Gateway = (*Adapter)(nil)
