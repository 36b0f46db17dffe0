package domain

import "time"

// EventType is the provider-neutral name of a webhook event.
type EventType string

const (
	EventTypeCheckoutCompleted EventType = "checkout.completed"
	EventTypeCheckoutExpired   EventType = "checkout.expired"
	EventTypePaymentSucceeded  EventType = "payment.succeeded"
	EventTypePaymentFailed     EventType = "payment.failed"
	EventTypeAccountUpdated    EventType = "account.updated"
	EventTypeTransferPaid      EventType = "transfer.paid"
)

// Metadata keys written on gateway objects and read back from events.
const (
	MetadataOrderID       = "order_id"
	MetadataBuyerID       = "buyer_id"
	MetadataRentalID      = "rental_id"
	MetadataLedgerEntryID = "ledger_entry_id"
)

// Event is a verified, decoded webhook. Exactly one of the payload
// pointers is set, matching Type.
type Event struct {
	ID         string
	Provider   string
	Type       EventType
	SourceType string
	OccurredAt time.Time
	Payload    []byte

	Checkout *CheckoutEvent
	Payment  *PaymentEvent
	Account  *AccountUpdate
	Transfer *TransferEvent
}

type CheckoutEvent struct {
	SessionID          string
	OrderID            string
	ExternalPaymentID  string
	ExternalCustomerID string
	AmountTotal        int64
	Currency           string
}

type PaymentEvent struct {
	PaymentID     string
	RentalID      string
	Amount        int64
	Currency      string
	FailureReason string
}

type AccountUpdate struct {
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	BankVerified     bool
	// OccurredAt orders updates for one account; older ones are dropped.
	OccurredAt       time.Time
}

type TransferEvent struct {
	TransferID           string
	LedgerEntryID        string
	DestinationAccountID string
	Amount               int64
	Currency             string
}
