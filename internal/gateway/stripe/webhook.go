package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/rigmarket/internal/gateway/domain"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const signatureHeader = "Stripe-Signature"

// Older API versions still emit transfer.paid; newer ones settle on create.
const eventTypeTransferPaid stripe.EventType = "transfer.paid"

func (a *Adapter) ParseWebhook(payload []byte, headers http.Header) (*domain.Event, error) {
	if a.webhookSecret == "" {
		return nil, domain.ErrNotConfigured
	}
	sig := strings.TrimSpace(headers.Get(signatureHeader))
	if sig == "" {
		return nil, domain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, domain.ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	out := &domain.Event{
		ID:         event.ID,
		Provider:   domain.ProviderStripe,
		SourceType: string(event.Type),
		OccurredAt: timestamp(event.Created),
		Payload:    payload,
	}
	if event.Data == nil {
		return nil, domain.ErrInvalidPayload
	}
	raw := event.Data.Raw

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		// Delayed payment methods complete the session unpaid; the async
		// success event settles it later.
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return nil, domain.ErrEventIgnored
		}
		out.Type = domain.EventTypeCheckoutCompleted
		out.Checkout = toCheckoutEvent(&session)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Type = domain.EventTypeCheckoutCompleted
		out.Checkout = toCheckoutEvent(&session)
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Type = domain.EventTypeCheckoutExpired
		out.Checkout = toCheckoutEvent(&session)
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw, &intent); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Type = domain.EventTypePaymentSucceeded
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			out.Type = domain.EventTypePaymentFailed
		}
		out.Payment = toPaymentEvent(&intent)
	case stripe.EventTypeAccountUpdated:
		var account stripeAccount
		if err := json.Unmarshal(raw, &account); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		if strings.TrimSpace(account.ID) == "" {
			return nil, domain.ErrInvalidPayload
		}
		out.Type = domain.EventTypeAccountUpdated
		out.Account = account.toAccountUpdate()
		out.Account.OccurredAt = out.OccurredAt
	case stripe.EventTypeTransferCreated, eventTypeTransferPaid:
		var transfer stripe.Transfer
		if err := json.Unmarshal(raw, &transfer); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Type = domain.EventTypeTransferPaid
		out.Transfer = toTransferEvent(&transfer)
	default:
		return nil, domain.ErrEventIgnored
	}

	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func toCheckoutEvent(session *stripe.CheckoutSession) *domain.CheckoutEvent {
	evt := &domain.CheckoutEvent{
		SessionID:   session.ID,
		OrderID:     strings.TrimSpace(session.ClientReferenceID),
		AmountTotal: session.AmountTotal,
		Currency:    strings.ToUpper(string(session.Currency)),
	}
	if evt.OrderID == "" {
		evt.OrderID = readMetadataValue(session.Metadata, domain.MetadataOrderID)
	}
	if session.PaymentIntent != nil {
		evt.ExternalPaymentID = session.PaymentIntent.ID
	}
	if session.Subscription != nil && evt.ExternalPaymentID == "" {
		evt.ExternalPaymentID = session.Subscription.ID
	}
	if session.Customer != nil {
		evt.ExternalCustomerID = session.Customer.ID
	}
	return evt
}

func toPaymentEvent(intent *stripe.PaymentIntent) *domain.PaymentEvent {
	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	evt := &domain.PaymentEvent{
		PaymentID: intent.ID,
		RentalID:  readMetadataValue(intent.Metadata, domain.MetadataRentalID),
		Amount:    amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
	}
	if intent.LastPaymentError != nil {
		evt.FailureReason = string(intent.LastPaymentError.Code)
		if evt.FailureReason == "" {
			evt.FailureReason = intent.LastPaymentError.Msg
		}
	}
	return evt
}

func toTransferEvent(transfer *stripe.Transfer) *domain.TransferEvent {
	evt := &domain.TransferEvent{
		TransferID:    transfer.ID,
		LedgerEntryID: readMetadataValue(transfer.Metadata, domain.MetadataLedgerEntryID),
		Amount:        transfer.Amount,
		Currency:      strings.ToUpper(string(transfer.Currency)),
	}
	if transfer.Destination != nil {
		evt.DestinationAccountID = transfer.Destination.ID
	}
	return evt
}

// stripeAccount decodes only the capability fields of an account object.
type stripeAccount struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	ExternalAccounts struct {
		Data []struct {
			Object string `json:"object"`
			Status string `json:"status"`
		} `json:"data"`
	} `json:"external_accounts"`
}

func (a stripeAccount) toAccountUpdate() *domain.AccountUpdate {
	update := &domain.AccountUpdate{
		AccountID:        a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
	for _, ea := range a.ExternalAccounts.Data {
		if ea.Object == "bank_account" && isVerifiedBankStatus(ea.Status) {
			update.BankVerified = true
			break
		}
	}
	return update
}

func readMetadataValue(metadata map[string]string, key string) string {
	if metadata == nil {
		return ""
	}
	return strings.TrimSpace(metadata[key])
}

func timestamp(unix int64) time.Time {
	if unix <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}
