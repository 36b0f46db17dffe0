package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/pricing"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Rental is time-boxed access to one machine. The split columns are
// written once and never recomputed.
type Rental struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	MachineID         string        `json:"machine_id"`
	RenterID          string        `json:"renter_id"`
	OwnerID           string        `json:"owner_id"`
	StartDate         time.Time     `json:"start_date"`
	EndDate           time.Time     `json:"end_date"`
	DailyRate         int64         `json:"daily_rate"`
	Currency          string        `json:"currency"`
	Status            Status        `gorm:"type:text" json:"status"`
	PaymentStatus     PaymentStatus `gorm:"type:text" json:"payment_status"`
	TotalAmount       *int64        `json:"total_amount,omitempty"`
	PlatformFee       *int64        `json:"platform_fee,omitempty"`
	OwnerPayout       *int64        `json:"owner_payout,omitempty"`
	FeeSchedule       *string       `json:"fee_schedule,omitempty"`
	FeeRate           *string       `json:"fee_rate,omitempty"`
	ExternalPaymentID *string       `json:"external_payment_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
}

func (Rental) TableName() string { return "rentals" }

// Split returns the captured split, or false when none has been captured.
func (r Rental) Split() (pricing.Split, bool) {
	if r.TotalAmount == nil || r.PlatformFee == nil || r.OwnerPayout == nil {
		return pricing.Split{}, false
	}
	split := pricing.Split{
		Total:       *r.TotalAmount,
		PlatformFee: *r.PlatformFee,
		OwnerPayout: *r.OwnerPayout,
	}
	if r.FeeSchedule != nil {
		split.Schedule = pricing.Schedule(*r.FeeSchedule)
	}
	if r.FeeRate != nil {
		split.FeeRate = *r.FeeRate
	}
	return split, true
}

func (r Rental) PaymentID() string {
	if r.ExternalPaymentID == nil {
		return ""
	}
	return *r.ExternalPaymentID
}
