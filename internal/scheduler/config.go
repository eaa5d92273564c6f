package scheduler

import (
	"time"

	"github.com/smallbiznis/tenantgate/internal/config"
)

// Config bounds each job run. Schedule timing itself comes from the
// hot-reloadable billing config.
type Config struct {
	Enabled        bool
	MonthlyTimeout time.Duration
	SweepTimeout   time.Duration
	LockTTL        time.Duration
	LockKey        string
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MonthlyTimeout: 2 * time.Hour,
		SweepTimeout:   5 * time.Minute,
		LockTTL:        3 * time.Hour,
		LockKey:        "tenantgate:scheduler:monthly_billing",
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.Enabled = cfg.SchedulerEnabled
	return c
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MonthlyTimeout <= 0 {
		c.MonthlyTimeout = defaults.MonthlyTimeout
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	return c
}
