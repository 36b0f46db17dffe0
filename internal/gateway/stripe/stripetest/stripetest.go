// Package stripetest builds signed webhook deliveries for tests.
package stripetest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

const WebhookSecret = "whsec_test"

// SignatureHeader returns a Stripe-Signature header value for payload.
func SignatureHeader(secret string, payload []byte, timestamp int64) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Unix(timestamp, 0),
	}).Header
}

// Payload encodes a Stripe event envelope around object.
func Payload(eventID, eventType string, object map[string]any) []byte {
	return PayloadAt(eventID, eventType, time.Now(), object)
}

// PayloadAt is Payload with an explicit event creation time.
func PayloadAt(eventID, eventType string, created time.Time, object map[string]any) []byte {
	body, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"created":     created.Unix(),
		"api_version": "2024-06-20",
		"data": map[string]any{
			"object": object,
		},
	})
	if err != nil {
		panic(err)
	}
	return body
}

// SignedHeaders returns request headers carrying a valid signature.
func SignedHeaders(secret string, payload []byte) http.Header {
	headers := http.Header{}
	headers.Set("Stripe-Signature", SignatureHeader(secret, payload, time.Now().Unix()))
	return headers
}

func PaymentIntentSucceeded(eventID, paymentID, rentalID string, amount int64) []byte {
	return Payload(eventID, "payment_intent.succeeded", map[string]any{
		"id":              paymentID,
		"object":          "payment_intent",
		"amount":          amount,
		"amount_received": amount,
		"currency":        "usd",
		"status":          "succeeded",
		"metadata":        map[string]any{"rental_id": rentalID},
	})
}

func PaymentIntentFailed(eventID, paymentID, rentalID string, amount int64) []byte {
	return Payload(eventID, "payment_intent.payment_failed", map[string]any{
		"id":       paymentID,
		"object":   "payment_intent",
		"amount":   amount,
		"currency": "usd",
		"status":   "requires_payment_method",
		"metadata": map[string]any{"rental_id": rentalID},
		"last_payment_error": map[string]any{
			"code":    "card_declined",
			"message": "Your card was declined.",
			"type":    "card_error",
		},
	})
}

func CheckoutSessionCompleted(eventID, sessionID, orderID string, amount int64) []byte {
	return Payload(eventID, "checkout.session.completed", map[string]any{
		"id":                  sessionID,
		"object":              "checkout.session",
		"client_reference_id": orderID,
		"amount_total":        amount,
		"currency":            "usd",
		"mode":                "payment",
		"payment_status":      "paid",
		"payment_intent":      "pi_" + sessionID,
		"customer":            "cus_test",
		"metadata":            map[string]any{"order_id": orderID},
	})
}

func CheckoutSessionExpired(eventID, sessionID, orderID string) []byte {
	return Payload(eventID, "checkout.session.expired", map[string]any{
		"id":                  sessionID,
		"object":              "checkout.session",
		"client_reference_id": orderID,
		"payment_status":      "unpaid",
		"status":              "expired",
	})
}

func AccountUpdated(eventID, accountID string, payoutsEnabled bool, bankStatus string) []byte {
	return AccountUpdatedAt(eventID, accountID, payoutsEnabled, bankStatus, time.Now())
}

func AccountUpdatedAt(eventID, accountID string, payoutsEnabled bool, bankStatus string, created time.Time) []byte {
	externalAccounts := []map[string]any{}
	if bankStatus != "" {
		externalAccounts = append(externalAccounts, map[string]any{
			"id":     "ba_" + accountID,
			"object": "bank_account",
			"status": bankStatus,
		})
	}
	return PayloadAt(eventID, "account.updated", created, map[string]any{
		"id":                accountID,
		"object":            "account",
		"charges_enabled":   payoutsEnabled,
		"payouts_enabled":   payoutsEnabled,
		"details_submitted": true,
		"external_accounts": map[string]any{
			"object": "list",
			"data":   externalAccounts,
		},
	})
}

func TransferCreated(eventID, transferID, accountID, ledgerEntryID string, amount int64) []byte {
	return Payload(eventID, "transfer.created", map[string]any{
		"id":          transferID,
		"object":      "transfer",
		"amount":      amount,
		"currency":    "usd",
		"destination": accountID,
		"metadata":    map[string]any{"ledger_entry_id": ledgerEntryID},
	})
}
