package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	FeeKindPercentage = "percentage"
	FeeKindFlatPerDay = "flat_per_day"
)

// FeeConfig is the platform fee schedule applied to new rental charges.
// Charged rentals keep the values captured at charge time.
type FeeConfig struct {
	Kind string `mapstructure:"kind"`
	// Rate is a decimal fraction in (0,1), e.g. "0.035".
	Rate string `mapstructure:"rate"`
	// FlatFeePerDay is in minor units.
	FlatFeePerDay int64 `mapstructure:"flatFeePerDay"`
}

func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		Kind: FeeKindPercentage,
		Rate: "0.035",
	}
}

type FeeConfigHolder struct {
	current atomic.Value // holds FeeConfig
}

func NewFeeConfigHolder(cfg Config) (*FeeConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("fees")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/rigmarket")
	if cfg.FeeConfigPath != "" {
		v.AddConfigPath(cfg.FeeConfigPath)
	}

	v.SetEnvPrefix("RIGMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeeConfig()
	v.SetDefault("fees.kind", defaults.Kind)
	v.SetDefault("fees.rate", defaults.Rate)
	v.SetDefault("fees.flatFeePerDay", defaults.FlatFeePerDay)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var fees FeeConfig
	if err := v.UnmarshalKey("fees", &fees); err != nil {
		return nil, err
	}
	if err := ValidateFeeConfig(fees); err != nil {
		return nil, err
	}

	holder := &FeeConfigHolder{}
	holder.current.Store(fees)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log := zap.L().Named("fee.config")
			var updated FeeConfig
			if err := v.UnmarshalKey("fees", &updated); err != nil {
				log.Warn("fee config reload failed", zap.Error(err))
				return
			}
			if err := holder.Set(updated); err != nil {
				log.Warn("invalid fee config ignored", zap.Error(err))
				return
			}
			log.Info("fee config reloaded",
				zap.String("file", e.Name),
				zap.String("kind", updated.Kind),
				zap.String("rate", updated.Rate),
				zap.Int64("flat_fee_per_day", updated.FlatFeePerDay),
			)
		})
	}

	return holder, nil
}

// NewStaticFeeConfigHolder returns a holder without a file watcher.
func NewStaticFeeConfigHolder(fees FeeConfig) (*FeeConfigHolder, error) {
	holder := &FeeConfigHolder{}
	if err := holder.Set(fees); err != nil {
		return nil, err
	}
	return holder, nil
}

func (h *FeeConfigHolder) Get() FeeConfig {
	return h.current.Load().(FeeConfig)
}

func (h *FeeConfigHolder) Set(fees FeeConfig) error {
	if err := ValidateFeeConfig(fees); err != nil {
		return err
	}
	h.current.Store(fees)
	return nil
}

func ValidateFeeConfig(fees FeeConfig) error {
	switch fees.Kind {
	case FeeKindPercentage:
		rate, err := decimal.NewFromString(strings.TrimSpace(fees.Rate))
		if err != nil {
			return fmt.Errorf("fees.rate: %w", err)
		}
		if !rate.IsPositive() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return errors.New("fees.rate must be between 0 and 1")
		}
	case FeeKindFlatPerDay:
		if fees.FlatFeePerDay <= 0 {
			return errors.New("fees.flatFeePerDay must be positive")
		}
	default:
		return fmt.Errorf("fees.kind %q is not supported", fees.Kind)
	}
	return nil
}
