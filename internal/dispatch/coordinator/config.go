package coordinator

import (
	"time"

	"service-dispatch/internal/common/config"
	"service-dispatch/internal/models"
)

type Config struct {
	TopN              int
	AcceptanceTimeout time.Duration
	UrgencyTimeouts   map[models.Urgency]time.Duration
	FanoutConcurrency int
	LatencyCeiling    time.Duration
}

func DefaultConfig() Config {
	return Config{
		TopN:              3,
		AcceptanceTimeout: 10 * time.Minute,
		FanoutConcurrency: 4,
		LatencyCeiling:    10 * time.Minute,
	}
}

// ConfigFromDispatch maps the dispatch section of the application config.
func ConfigFromDispatch(d config.DispatchConfig) Config {
	cfg := Config{
		TopN:              d.TopN,
		AcceptanceTimeout: config.GetDuration(d.AcceptanceTimeout),
		UrgencyTimeouts:   make(map[models.Urgency]time.Duration, len(d.UrgencyTimeouts)),
		FanoutConcurrency: d.FanoutConcurrency,
		LatencyCeiling:    config.GetDuration(d.LatencyCeiling),
	}
	for urgency := range d.UrgencyTimeouts {
		cfg.UrgencyTimeouts[models.Urgency(urgency)] = d.AcceptanceTimeoutFor(urgency)
	}
	return cfg
}

// TimeoutFor returns the acceptance window for a request's urgency.
func (c Config) TimeoutFor(u models.Urgency) time.Duration {
	if d, ok := c.UrgencyTimeouts[u]; ok && d > 0 {
		return d
	}
	return c.AcceptanceTimeout
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TopN <= 0 {
		c.TopN = def.TopN
	}
	if c.AcceptanceTimeout <= 0 {
		c.AcceptanceTimeout = def.AcceptanceTimeout
	}
	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = def.FanoutConcurrency
	}
	if c.LatencyCeiling <= 0 {
		c.LatencyCeiling = def.LatencyCeiling
	}
	return c
}
