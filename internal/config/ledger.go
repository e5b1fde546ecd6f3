package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LedgerConfig tunes the ledger core: when the overdue scanner fires after the
// collection becomes available, and how schedule drift is tolerated.
type LedgerConfig struct {
	ScanDelayMillis    int    `mapstructure:"scanDelayMillis"`
	DriftToleranceCent int64  `mapstructure:"driftToleranceCent"`
	RoundingMode       string `mapstructure:"roundingMode"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		ScanDelayMillis:    1500,
		DriftToleranceCent: 1,
		RoundingMode:       "equal-split",
	}
}

func (c LedgerConfig) ScanDelay() time.Duration {
	return time.Duration(c.ScanDelayMillis) * time.Millisecond
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

func NewLedgerConfigHolder() (*LedgerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/backoffice")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.scanDelayMillis", defaults.ScanDelayMillis)
	v.SetDefault("ledger.driftToleranceCent", defaults.DriftToleranceCent)
	v.SetDefault("ledger.roundingMode", defaults.RoundingMode)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg LedgerConfig
	if err := v.UnmarshalKey("ledger", &cfg); err != nil {
		return nil, err
	}
	if err := validateLedgerConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LedgerConfigHolder{}
	holder.Set(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LedgerConfig
		if err := v.UnmarshalKey("ledger", &updated); err != nil {
			log.Printf("[ledger-config] reload failed: %v", err)
			return
		}
		if err := validateLedgerConfig(updated); err != nil {
			log.Printf("[ledger-config] invalid config ignored: %v", err)
			return
		}
		holder.Set(updated)
		log.Printf("[ledger-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Get returns the active config. A zero-value holder serves defaults.
func (h *LedgerConfigHolder) Get() LedgerConfig {
	if cfg, ok := h.current.Load().(LedgerConfig); ok {
		return cfg
	}
	return DefaultLedgerConfig()
}

func (h *LedgerConfigHolder) Set(cfg LedgerConfig) {
	h.current.Store(cfg)
}

func validateLedgerConfig(cfg LedgerConfig) error {
	if cfg.ScanDelayMillis < 0 {
		return errors.New("ledger.scanDelayMillis cannot be negative")
	}
	if cfg.DriftToleranceCent < 0 {
		return errors.New("ledger.driftToleranceCent cannot be negative")
	}
	switch cfg.RoundingMode {
	case "equal-split", "last-absorbs":
		return nil
	default:
		return errors.New("ledger.roundingMode must be equal-split or last-absorbs")
	}
}
