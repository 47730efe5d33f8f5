package scheduler

import (
	"time"

	"github.com/smallbiznis/rentledger/internal/config"
)

const overdueSweepLockKey = "rentledger:scheduler:overdue_sweep"

// Config controls scheduler intervals and the distributed sweep lock.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockKey     string
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 15 * time.Minute,
		JobTimeout:  2 * time.Minute,
		LockKey:     overdueSweepLockKey,
		LockTTL:     5 * time.Minute,
	}
}

// ProvideConfig derives the scheduler config from reconcile.yml.
func ProvideConfig(holder *config.ReconcileConfigHolder) Config {
	rc := holder.Get()
	return Config{
		RunInterval: rc.OverdueSweepInterval,
		LockTTL:     rc.OverdueSweepLockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
