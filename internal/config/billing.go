package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the hot-reloadable part of the billing schedule.
type BillingConfig struct {
	Cutoff               string        `mapstructure:"cutoff"`
	Location             string        `mapstructure:"location"`
	OverdueSweepInterval time.Duration `mapstructure:"overdueSweepInterval"`
	Concurrency          int           `mapstructure:"concurrency"`
}

// CutoffClock returns the hour and minute of the monthly billing cutoff.
func (c BillingConfig) CutoffClock() (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(c.Cutoff))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid billing cutoff %q: %w", c.Cutoff, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// TimeLocation resolves the configured billing location, defaulting to UTC.
func (c BillingConfig) TimeLocation() (*time.Location, error) {
	name := strings.TrimSpace(c.Location)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func DefaultBillingConfig(cfg Config) BillingConfig {
	return BillingConfig{
		Cutoff:               cfg.Billing.Cutoff,
		Location:             cfg.Billing.Location,
		OverdueSweepInterval: cfg.Billing.OverdueSweepInterval,
		Concurrency:          cfg.Billing.Concurrency,
	}
}

func (c BillingConfig) withDefaults(defaults BillingConfig) BillingConfig {
	if strings.TrimSpace(c.Cutoff) == "" {
		c.Cutoff = defaults.Cutoff
	}
	if strings.TrimSpace(c.Location) == "" {
		c.Location = defaults.Location
	}
	if c.OverdueSweepInterval <= 0 {
		c.OverdueSweepInterval = defaults.OverdueSweepInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	return c
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(cfg Config, log *zap.Logger) (*BillingConfigHolder, error) {
	defaults := DefaultBillingConfig(cfg)
	if err := validateBillingConfig(defaults); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yml")
	if path := strings.TrimSpace(cfg.Billing.ConfigFile); path != "" && strings.ContainsAny(path, "/\\") {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(path, ".yml"))
		v.AddConfigPath("/etc/tenantgate")
		v.AddConfigPath(".")
	}

	v.SetDefault("billing.cutoff", defaults.Cutoff)
	v.SetDefault("billing.location", defaults.Location)
	v.SetDefault("billing.overdueSweepInterval", defaults.OverdueSweepInterval)
	v.SetDefault("billing.concurrency", defaults.Concurrency)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
		fileFound = false
	}

	var billing BillingConfig
	if err := v.UnmarshalKey("billing", &billing); err != nil {
		return nil, err
	}
	billing = billing.withDefaults(defaults)
	if err := validateBillingConfig(billing); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(billing)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		updated = updated.withDefaults(defaults)
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("billing config invalid, ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if _, _, err := cfg.CutoffClock(); err != nil {
		return err
	}
	if _, err := cfg.TimeLocation(); err != nil {
		return fmt.Errorf("invalid billing location %q: %w", cfg.Location, err)
	}
	if cfg.OverdueSweepInterval <= 0 {
		return errors.New("billing.overdueSweepInterval must be positive")
	}
	if cfg.Concurrency <= 0 {
		return errors.New("billing.concurrency must be positive")
	}
	return nil
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}
