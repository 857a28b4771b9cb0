// internal/workers/helpdesk/classify-ticket/config.go
package classifyticket

import (
	"time"

	"helpdesk-workers/internal/common/config"
)

type Config struct {
	Timeout           time.Duration
	GenerationTimeout time.Duration
	MaxTokens         int
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:           30 * time.Second,
		GenerationTimeout: 10 * time.Second,
		MaxTokens:         10,
	}
	if cfg == nil {
		return c
	}
	if w := config.GetWorkerConfig(cfg, TaskType); w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	if cfg.Pipeline.ClassifierTimeout > 0 {
		c.GenerationTimeout = config.GetDuration(cfg.Pipeline.ClassifierTimeout)
	}
	return c
}
