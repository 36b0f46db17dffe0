package domain

import (
	"context"
	"errors"
)

type CreateRentalRequest struct {
	MachineID string `json:"machine_id" validate:"required,max=128"`
	RenterID  string `json:"renter_id" validate:"required,max=128"`
	OwnerID   string `json:"owner_id" validate:"required,max=128"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	DailyRate int64  `json:"daily_rate" validate:"gt=0,lte=99999999"`
	Currency  string `json:"currency" validate:"required,iso4217"`
}

type PaymentIntentRequest struct {
	RentalID string            `json:"rental_id" validate:"required"`
	Amount   int64             `json:"amount_minor_units"`
	Currency string            `json:"currency" validate:"required,iso4217"`
	Metadata map[string]string `json:"metadata"`
}

type PaymentIntentResponse struct {
	ExternalPaymentID string `json:"external_payment_id"`
	ClientSecret      string `json:"client_secret"`
}

type Service interface {
	Create(ctx context.Context, req CreateRentalRequest) (Rental, error)
	GetByID(ctx context.Context, id string) (Rental, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntentResponse, error)
}

var (
	ErrInvalidRequest   = errors.New("invalid_rental_request")
	ErrInvalidID        = errors.New("invalid_rental_id")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrZeroAmount       = errors.New("zero_amount")
	ErrAmountMismatch   = errors.New("amount_mismatch")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrNotFound         = errors.New("rental_not_found")
	ErrNotPayable       = errors.New("rental_not_payable")
	ErrAlreadyPaid      = errors.New("rental_already_paid")
)
