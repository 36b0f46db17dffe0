package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFeeConfig(t *testing.T) {
	cases := []struct {
		name    string
		fees    FeeConfig
		wantErr bool
	}{
		{name: "default", fees: DefaultFeeConfig()},
		{name: "flat", fees: FeeConfig{Kind: FeeKindFlatPerDay, FlatFeePerDay: 125}},
		{name: "zero rate", fees: FeeConfig{Kind: FeeKindPercentage, Rate: "0"}, wantErr: true},
		{name: "full rate", fees: FeeConfig{Kind: FeeKindPercentage, Rate: "1"}, wantErr: true},
		{name: "garbage rate", fees: FeeConfig{Kind: FeeKindPercentage, Rate: "abc"}, wantErr: true},
		{name: "flat without fee", fees: FeeConfig{Kind: FeeKindFlatPerDay}, wantErr: true},
		{name: "unknown kind", fees: FeeConfig{Kind: "tiered"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFeeConfig(tc.fees)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFeeConfigHolderRejectsInvalidUpdate(t *testing.T) {
	holder, err := NewStaticFeeConfigHolder(DefaultFeeConfig())
	require.NoError(t, err)

	err = holder.Set(FeeConfig{Kind: FeeKindPercentage, Rate: "2"})
	require.Error(t, err)
	assert.Equal(t, "0.035", holder.Get().Rate)

	require.NoError(t, holder.Set(FeeConfig{Kind: FeeKindPercentage, Rate: "0.0175"}))
	assert.Equal(t, "0.0175", holder.Get().Rate)
}

func TestNewFeeConfigHolderFallsBackToDefaults(t *testing.T) {
	holder, err := NewFeeConfigHolder(Config{FeeConfigPath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DefaultFeeConfig(), holder.Get())
}
