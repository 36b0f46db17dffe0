package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageSplitThreePointFivePercent(t *testing.T) {
	split, err := PercentageSplit(10000, 1, decimal.RequireFromString("0.035"))
	require.NoError(t, err)
	assert.Equal(t, int64(350), split.PlatformFee)
	assert.Equal(t, int64(9650), split.OwnerPayout)
	assert.Equal(t, "0.035", split.FeeRate)

	later, err := PercentageSplit(10000, 1, decimal.RequireFromString("0.0175"))
	require.NoError(t, err)
	assert.Equal(t, int64(175), later.PlatformFee)
	// The first split is a value and does not follow the new rate.
	assert.Equal(t, int64(350), split.PlatformFee)
}

func TestPercentageSplitRoundsHalfUp(t *testing.T) {
	split, err := PercentageSplit(150, 1, decimal.RequireFromString("0.035"))
	require.NoError(t, err)
	// 150 * 0.035 = 5.25
	assert.Equal(t, int64(5), split.PlatformFee)

	split, err = PercentageSplit(100, 1, decimal.RequireFromString("0.025"))
	require.NoError(t, err)
	// 2.5 rounds up
	assert.Equal(t, int64(3), split.PlatformFee)
	assert.Equal(t, int64(97), split.OwnerPayout)
}

func TestFlatPerDaySplit(t *testing.T) {
	split, err := FlatPerDaySplit(2500, 2, 125)
	require.NoError(t, err)
	assert.Equal(t, int64(5250), split.Total)
	assert.Equal(t, int64(250), split.PlatformFee)
	assert.Equal(t, int64(5000), split.OwnerPayout)
	assert.Equal(t, "125", split.FeeRate)
}

func TestSplitAlwaysSumsToTotal(t *testing.T) {
	rates := []string{"0.0001", "0.01", "0.035", "0.1", "0.333", "0.5", "0.9999"}
	totals := []int64{1, 7, 99, 101, 12345, 999999}
	for _, raw := range rates {
		rate := decimal.RequireFromString(raw)
		for _, total := range totals {
			split, err := PercentageSplit(total, 1, rate)
			if errors.Is(err, ErrZeroPayout) {
				// The fee rounded up to the whole total.
				fee := decimal.NewFromInt(total).Mul(rate).Round(0).IntPart()
				assert.Equal(t, total, fee, "rate %s total %d", raw, total)
				continue
			}
			require.NoError(t, err, "rate %s total %d", raw, total)
			assert.Equal(t, total, split.PlatformFee+split.OwnerPayout)
			assert.Greater(t, split.OwnerPayout, int64(0))
		}
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name    string
		fees    config.FeeConfig
		rate    int64
		days    int64
		want    Split
		wantErr error
	}{
		{
			name: "percentage",
			fees: config.FeeConfig{Kind: config.FeeKindPercentage, Rate: "0.035"},
			rate: 5000, days: 2,
			want: Split{Schedule: SchedulePercentage, FeeRate: "0.035", Days: 2, Total: 10000, PlatformFee: 350, OwnerPayout: 9650},
		},
		{
			name: "flat per day",
			fees: config.FeeConfig{Kind: config.FeeKindFlatPerDay, FlatFeePerDay: 125},
			rate: 2500, days: 2,
			want: Split{Schedule: ScheduleFlatPerDay, FeeRate: "125", Days: 2, Total: 5250, PlatformFee: 250, OwnerPayout: 5000},
		},
		{name: "rate of one", fees: config.FeeConfig{Kind: config.FeeKindPercentage, Rate: "1"}, rate: 100, days: 1, wantErr: ErrInvalidRate},
		{name: "zero rate", fees: config.FeeConfig{Kind: config.FeeKindPercentage, Rate: "0"}, rate: 100, days: 1, wantErr: ErrInvalidRate},
		{name: "unknown schedule", fees: config.FeeConfig{Kind: "tiered"}, rate: 100, days: 1, wantErr: ErrInvalidSchedule},
		{name: "zero daily rate", fees: config.DefaultFeeConfig(), rate: 0, days: 1, wantErr: ErrInvalidDailyRate},
		{name: "rental too long", fees: config.DefaultFeeConfig(), rate: 100, days: MaxRentalDays + 1, wantErr: ErrRentalTooLong},
		{name: "flat total wraps int64", fees: config.FeeConfig{Kind: config.FeeKindFlatPerDay, FlatFeePerDay: 125}, rate: 2305843009213693953, days: 8, wantErr: ErrAmountTooLarge},
		{name: "percentage total wraps int64", fees: config.FeeConfig{Kind: config.FeeKindPercentage, Rate: "0.035"}, rate: 2305843009213693953, days: 8, wantErr: ErrAmountTooLarge},
		{name: "total above charge ceiling", fees: config.FeeConfig{Kind: config.FeeKindPercentage, Rate: "0.035"}, rate: MaxAmount, days: 2, wantErr: ErrAmountTooLarge},
		{name: "payout rounds to zero", fees: config.FeeConfig{Kind: config.FeeKindPercentage, Rate: "0.5"}, rate: 1, days: 1, wantErr: ErrZeroPayout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quote(tc.fees, tc.rate, tc.days)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRentalDaysIsInclusive(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	days, err := RentalDays(start, start)
	require.NoError(t, err)
	assert.Equal(t, int64(1), days)

	days, err = RentalDays(start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), days)

	_, err = RentalDays(start, start.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestRentalDaysCountsCalendarDates(t *testing.T) {
	// Far beyond the range a time.Duration can hold.
	days, err := RentalDays(
		time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(3287182), days)

	// Time of day and zone do not change the date count.
	loc := time.FixedZone("UTC+9", 9*60*60)
	days, err = RentalDays(
		time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC).In(loc),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(3), days)
}

func TestMulAmountRejectsOverflow(t *testing.T) {
	got, err := MulAmount(2500, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got)

	got, err = MulAmount(MaxAmount, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxAmount, got)

	_, err = MulAmount(MaxAmount, 2)
	assert.ErrorIs(t, err, ErrAmountTooLarge)

	// 2^61+1 times 8 wraps to 8 in int64.
	_, err = MulAmount(2305843009213693953, 8)
	assert.ErrorIs(t, err, ErrAmountTooLarge)

	_, err = AddAmount(MaxAmount, 1)
	assert.ErrorIs(t, err, ErrAmountTooLarge)
}

func TestFlatPerDaySplitRejectsWrappedTotals(t *testing.T) {
	_, err := FlatPerDaySplit(2305843009213693953, 8, 125)
	assert.ErrorIs(t, err, ErrAmountTooLarge)

	_, err = FlatPerDaySplit(MaxAmount, 1, 1)
	assert.ErrorIs(t, err, ErrAmountTooLarge)
}
