package domain

import (
	"context"
	"net/http"
	"time"
)

const ProviderStripe = "stripe"

//go:generate mockgen -source=gateway.go -destination=../mocks/mock_gateway.go -package=mocks

// Gateway is the outbound surface of an external payment processor.
// Every mutating call carries an idempotency key so a retried request
// returns the object created by the first attempt.
type Gateway interface {
	Provider() string

	FindOrCreatePayer(ctx context.Context, req PayerRequest) (Payer, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error

	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, paymentID string) (PaymentIntent, error)

	CreatePayeeAccount(ctx context.Context, req PayeeAccountRequest) (PayeeAccount, error)
	GetPayeeAccount(ctx context.Context, accountID string) (PayeeAccount, error)
	CreateOnboardingLink(ctx context.Context, req OnboardingLinkRequest) (OnboardingLink, error)

	CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error)

	// ParseWebhook authenticates the payload before decoding it. Unsupported
	// event types return ErrEventIgnored.
	ParseWebhook(payload []byte, headers http.Header) (*Event, error)
}

type PayerRequest struct {
	Email          string
	IdempotencyKey string
}

type Payer struct {
	ExternalCustomerID string
	Email              string
}

type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

type CheckoutLineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	// Interval is required for subscription mode (month or year).
	Interval string
}

type CheckoutSessionRequest struct {
	OrderID            string
	ExternalCustomerID string
	Mode               CheckoutMode
	Currency           string
	LineItems          []CheckoutLineItem
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
	IdempotencyKey     string
}

type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

type PaymentIntentRequest struct {
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentIntentStatus string

const (
	PaymentIntentStatusSucceeded  PaymentIntentStatus = "succeeded"
	PaymentIntentStatusProcessing PaymentIntentStatus = "processing"
	PaymentIntentStatusCanceled   PaymentIntentStatus = "canceled"
	PaymentIntentStatusOpen       PaymentIntentStatus = "open"
)

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       PaymentIntentStatus
}

type PayeeAccountRequest struct {
	OwnerID        string
	Email          string
	DisplayName    string
	Country        string
	IdempotencyKey string
}

type PayeeAccount struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	BankVerified     bool
}

type OnboardingLinkRequest struct {
	AccountID  string
	RefreshURL string
	ReturnURL  string
}

type OnboardingLink struct {
	URL       string
	ExpiresAt time.Time
}

type TransferRequest struct {
	Amount               int64
	Currency             string
	DestinationAccountID string
	Metadata             map[string]string
	IdempotencyKey       string
}

type Transfer struct {
	ID string
}
