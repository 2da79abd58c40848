package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DispatchConfig tunes the outbound message sweeps without a redeploy.
type DispatchConfig struct {
	BatchSize        int    `mapstructure:"batchSize"`
	MaxRecipients    int    `mapstructure:"maxRecipients"`
	LockTTLSeconds   int    `mapstructure:"lockTtlSeconds"`
	DefaultLanguage  string `mapstructure:"defaultLanguage"`
	RecomputeWorkers int    `mapstructure:"recomputeWorkers"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BatchSize:        20,
		MaxRecipients:    5000,
		LockTTLSeconds:   600,
		DefaultLanguage:  "pt_BR",
		RecomputeWorkers: 1,
	}
}

type DispatchConfigHolder struct {
	current atomic.Value // holds DispatchConfig
}

func NewDispatchConfigHolder() (*DispatchConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("dispatch")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tribewave/config")
	v.AddConfigPath("/etc/tribewave")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRIBEWAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultDispatchConfig()
		v.SetDefault("dispatch.batchSize", defaults.BatchSize)
		v.SetDefault("dispatch.maxRecipients", defaults.MaxRecipients)
		v.SetDefault("dispatch.lockTtlSeconds", defaults.LockTTLSeconds)
		v.SetDefault("dispatch.defaultLanguage", defaults.DefaultLanguage)
		v.SetDefault("dispatch.recomputeWorkers", defaults.RecomputeWorkers)
	}

	var cfg DispatchConfig
	if err := v.UnmarshalKey("dispatch", &cfg); err != nil {
		return nil, err
	}
	cfg = withDispatchDefaults(cfg)
	if err := validateDispatchConfig(cfg); err != nil {
		return nil, err
	}

	holder := &DispatchConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DispatchConfig
		if err := v.UnmarshalKey("dispatch", &updated); err != nil {
			log.Printf("[dispatch-config] reload failed: %v", err)
			return
		}
		updated = withDispatchDefaults(updated)
		if err := validateDispatchConfig(updated); err != nil {
			log.Printf("[dispatch-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[dispatch-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticDispatchConfigHolder wraps a fixed config with no file
// watching. Used by tests.
func NewStaticDispatchConfigHolder(cfg DispatchConfig) *DispatchConfigHolder {
	holder := &DispatchConfigHolder{}
	holder.current.Store(withDispatchDefaults(cfg))
	return holder
}

func (h *DispatchConfigHolder) Current() DispatchConfig {
	return h.current.Load().(DispatchConfig)
}

func withDispatchDefaults(cfg DispatchConfig) DispatchConfig {
	defaults := DefaultDispatchConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = defaults.MaxRecipients
	}
	if cfg.LockTTLSeconds <= 0 {
		cfg.LockTTLSeconds = defaults.LockTTLSeconds
	}
	if strings.TrimSpace(cfg.DefaultLanguage) == "" {
		cfg.DefaultLanguage = defaults.DefaultLanguage
	}
	if cfg.RecomputeWorkers <= 0 {
		cfg.RecomputeWorkers = defaults.RecomputeWorkers
	}
	return cfg
}

func validateDispatchConfig(cfg DispatchConfig) error {
	if cfg.BatchSize > 500 {
		return errors.New("dispatch batchSize must be <= 500")
	}
	if cfg.MaxRecipients > 100000 {
		return errors.New("dispatch maxRecipients must be <= 100000")
	}
	return nil
}
