package scheduler

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

// Config controls sweep intervals and per-job timeouts.
type Config struct {
	RunInterval     time.Duration
	PromoteTimeout  time.Duration
	RecountTimeout  time.Duration
	DispatchTimeout time.Duration

	// EnabledJobs narrows which sweeps this instance runs. Empty means
	// all jobs, which is the monolith default.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		PromoteTimeout:  30 * time.Second,
		RecountTimeout:  5 * time.Minute,
		DispatchTimeout: 2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PromoteTimeout <= 0 {
		c.PromoteTimeout = defaults.PromoteTimeout
	}
	if c.RecountTimeout <= 0 {
		c.RecountTimeout = defaults.RecountTimeout
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = defaults.DispatchTimeout
	}
	return c
}
