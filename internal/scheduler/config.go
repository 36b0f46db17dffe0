package scheduler

import (
	"time"

	"github.com/smallbiznis/rigmarket/internal/config"
)

const (
	JobPayoutDispatch         = "payout_dispatch"
	JobReconcile              = "reconcile"
	JobAbandonedCheckoutSweep = "abandoned_checkout_sweep"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	EnabledJobs []string
	// StaleAfter is how old an unsettled record must be before reconcile
	// reports it.
	StaleAfter time.Duration
	// SweepAbandonedAfter of zero disables the abandoned checkout sweep.
	SweepAbandonedAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   100,
		JobTimeout:  30 * time.Second,
		StaleAfter:  15 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:         cfg.Scheduler.RunInterval,
		BatchSize:           cfg.Scheduler.BatchSize,
		JobTimeout:          cfg.Scheduler.JobTimeout,
		EnabledJobs:         cfg.Scheduler.EnabledJobs,
		SweepAbandonedAfter: cfg.Scheduler.SweepAbandonedAfter,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	if c.SweepAbandonedAfter < 0 {
		c.SweepAbandonedAfter = 0
	}
	return c
}
