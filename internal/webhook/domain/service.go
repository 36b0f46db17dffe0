package domain

import (
	"context"
	"errors"
	"net/http"

	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	EventID   string  `json:"event_id,omitempty"`
	EventType string  `json:"event_type,omitempty"`
	Outcome   Outcome `json:"outcome"`
}

type Service interface {
	// Ingest verifies, records and applies one webhook delivery. A nil
	// error means the delivery may be acknowledged.
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (Result, error)
}

// Handler applies the local effects of one event type. Handle runs inside
// the transaction that marks the event processed.
type Handler interface {
	EventTypes() []gatewaydomain.EventType
	Handle(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event) error
}

var ErrEmptyPayload = errors.New("empty_webhook_payload")

// ProcessingError is a verified event whose handler failed. The provider
// should redeliver it.
type ProcessingError struct {
	EventID   string
	EventType string
	Err       error
}

func (e *ProcessingError) Error() string {
	return "webhook " + e.EventType + " " + e.EventID + " failed: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) ErrorKind() string { return "webhook_processing_error" }
