// Package pricing decides how a rental total is split between the platform
// fee and the owner payout. The ledger only persists the result.
package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rigmarket/internal/config"
)

type Schedule string

const (
	SchedulePercentage Schedule = config.FeeKindPercentage
	ScheduleFlatPerDay Schedule = config.FeeKindFlatPerDay
)

// MaxAmount is the largest charge in minor units, the gateway's per-charge
// ceiling.
const MaxAmount int64 = 99_999_999

// MaxRentalDays bounds the length of one rental.
const MaxRentalDays int64 = 366

const secondsPerDay = 24 * 60 * 60

var (
	ErrInvalidSchedule  = errors.New("invalid_fee_schedule")
	ErrInvalidRate      = errors.New("invalid_fee_rate")
	ErrInvalidDailyRate = errors.New("invalid_daily_rate")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrRentalTooLong    = errors.New("rental_too_long")
	ErrAmountTooLarge   = errors.New("amount_too_large")
	ErrZeroPayout       = errors.New("owner_payout_zero")
	ErrSplitMismatch    = errors.New("fee_split_mismatch")
)

var (
	zero      = decimal.Zero
	one       = decimal.NewFromInt(1)
	maxAmount = decimal.NewFromInt(MaxAmount)
)

// Split is an already-decided division of a rental total. FeeRate records
// the schedule parameter it was computed with: the percentage as a decimal
// string, or the flat fee per day in minor units.
type Split struct {
	Schedule    Schedule
	FeeRate     string
	Days        int64
	Total       int64
	PlatformFee int64
	OwnerPayout int64
}

// Validate checks that the split adds up, stays under MaxAmount and leaves
// the owner a positive payout.
func (s Split) Validate() error {
	if s.Total <= 0 || s.PlatformFee < 0 || s.OwnerPayout < 0 {
		return ErrSplitMismatch
	}
	if s.Total > MaxAmount {
		return ErrAmountTooLarge
	}
	if s.PlatformFee+s.OwnerPayout != s.Total {
		return ErrSplitMismatch
	}
	if s.OwnerPayout == 0 {
		return ErrZeroPayout
	}
	return nil
}

// RentalDays counts calendar days in the inclusive range [start, end]. It
// works on UTC dates, so no duration arithmetic can saturate.
func RentalDays(start, end time.Time) (int64, error) {
	if start.IsZero() || end.IsZero() {
		return 0, ErrInvalidDateRange
	}
	s := truncateDay(start).Unix() / secondsPerDay
	e := truncateDay(end).Unix() / secondsPerDay
	if e < s {
		return 0, ErrInvalidDateRange
	}
	return e - s + 1, nil
}

// MulAmount multiplies two non-negative factors of a minor-unit amount and
// rejects products above MaxAmount.
func MulAmount(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrAmountTooLarge
	}
	product := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b))
	if product.GreaterThan(maxAmount) {
		return 0, ErrAmountTooLarge
	}
	return product.IntPart(), nil
}

// AddAmount adds two non-negative minor-unit amounts and rejects sums above
// MaxAmount.
func AddAmount(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrAmountTooLarge
	}
	sum := decimal.NewFromInt(a).Add(decimal.NewFromInt(b))
	if sum.GreaterThan(maxAmount) {
		return 0, ErrAmountTooLarge
	}
	return sum.IntPart(), nil
}

// Quote computes the split for a rental from the fee config in effect now.
// The caller captures the result; it is never recomputed afterwards.
func Quote(fees config.FeeConfig, dailyRate, days int64) (Split, error) {
	if dailyRate <= 0 {
		return Split{}, ErrInvalidDailyRate
	}
	if days <= 0 {
		return Split{}, ErrInvalidDateRange
	}
	if days > MaxRentalDays {
		return Split{}, ErrRentalTooLong
	}

	switch Schedule(strings.TrimSpace(fees.Kind)) {
	case SchedulePercentage:
		rate, err := ParseRate(fees.Rate)
		if err != nil {
			return Split{}, err
		}
		total, err := MulAmount(dailyRate, days)
		if err != nil {
			return Split{}, err
		}
		return PercentageSplit(total, days, rate)
	case ScheduleFlatPerDay:
		return FlatPerDaySplit(dailyRate, days, fees.FlatFeePerDay)
	default:
		return Split{}, fmt.Errorf("%w: %q", ErrInvalidSchedule, fees.Kind)
	}
}

// PercentageSplit takes round-half-up(total * rate) as the fee.
func PercentageSplit(total, days int64, rate decimal.Decimal) (Split, error) {
	if !validRate(rate) {
		return Split{}, ErrInvalidRate
	}
	if total <= 0 {
		return Split{}, ErrInvalidDailyRate
	}
	if total > MaxAmount {
		return Split{}, ErrAmountTooLarge
	}
	fee := decimal.NewFromInt(total).Mul(rate).Round(0).IntPart()
	split := Split{
		Schedule:    SchedulePercentage,
		FeeRate:     rate.String(),
		Days:        days,
		Total:       total,
		PlatformFee: fee,
		OwnerPayout: total - fee,
	}
	return split, split.Validate()
}

// FlatPerDaySplit charges the renter the daily rate plus a per-day fee; the
// owner receives the daily rate for every day.
func FlatPerDaySplit(dailyRate, days, feePerDay int64) (Split, error) {
	if feePerDay <= 0 {
		return Split{}, ErrInvalidRate
	}
	if dailyRate <= 0 {
		return Split{}, ErrInvalidDailyRate
	}
	perDay, err := AddAmount(dailyRate, feePerDay)
	if err != nil {
		return Split{}, err
	}
	total, err := MulAmount(perDay, days)
	if err != nil {
		return Split{}, err
	}
	fee, err := MulAmount(feePerDay, days)
	if err != nil {
		return Split{}, err
	}
	split := Split{
		Schedule:    ScheduleFlatPerDay,
		FeeRate:     strconv.FormatInt(feePerDay, 10),
		Days:        days,
		Total:       total,
		PlatformFee: fee,
		OwnerPayout: total - fee,
	}
	return split, split.Validate()
}

// ParseRate parses a fee rate, which must lie strictly between 0 and 1.
func ParseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, ErrInvalidRate
	}
	if !validRate(rate) {
		return decimal.Decimal{}, ErrInvalidRate
	}
	return rate, nil
}

func validRate(rate decimal.Decimal) bool {
	return rate.GreaterThan(zero) && rate.LessThan(one)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
