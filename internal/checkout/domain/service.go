package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type LineItemRequest struct {
	ProductRef  string `json:"product_ref" validate:"required,max=128"`
	Name        string `json:"name" validate:"required,max=200"`
	Quantity    int64  `json:"quantity" validate:"gt=0,lte=10000"`
	UnitAmount  int64  `json:"unit_amount" validate:"gte=0,lte=99999999"`
	Currency    string `json:"currency" validate:"required,iso4217"`
	Entitlement string `json:"entitlement,omitempty" validate:"omitempty,max=64"`
	Interval    string `json:"interval,omitempty" validate:"omitempty,oneof=month year"`
}

type CreateSessionRequest struct {
	BuyerID    string            `json:"buyer_id" validate:"required,max=128"`
	PayerEmail string            `json:"payer_email" validate:"required,email"`
	SuccessURL string            `json:"success_url" validate:"required,http_url"`
	CancelURL  string            `json:"cancel_url" validate:"required,http_url"`
	Mode       Mode              `json:"mode" validate:"required,oneof=payment subscription"`
	LineItems  []LineItemRequest `json:"line_items" validate:"required,min=1,max=50,dive"`
	// OrderID resumes a pending order instead of creating a new one.
	OrderID string `json:"order_id,omitempty"`
}

type CreateSessionResponse struct {
	OrderID           string `json:"order_id"`
	ExternalSessionID string `json:"external_session_id"`
	RedirectURL       string `json:"redirect_url"`
}

type Service interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResponse, error)
	GetOrder(ctx context.Context, id string) (Order, error)
}

var (
	ErrInvalidRequest   = errors.New("invalid_checkout_request")
	ErrInvalidOrderID   = errors.New("invalid_order_id")
	ErrZeroAmount       = errors.New("zero_amount")
	ErrAmountTooLarge   = errors.New("amount_too_large")
	ErrMixedCurrency    = errors.New("mixed_currency")
	ErrIntervalRequired = errors.New("interval_required")
	ErrNotFound         = errors.New("order_not_found")
	ErrOrderNotPending  = errors.New("order_not_pending")
	ErrRateLimited      = errors.New("rate_limited")
)

// RateLimitError carries the wait before the buyer may retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
