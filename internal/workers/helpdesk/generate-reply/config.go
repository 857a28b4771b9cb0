// internal/workers/helpdesk/generate-reply/config.go
package generatereply

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
		Timeout:           45 * time.Second,
		GenerationTimeout: 30 * time.Second,
		MaxTokens:         300,
	}
	if cfg == nil {
		return c
	}
	if w := config.GetWorkerConfig(cfg, TaskType); w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	if cfg.Pipeline.ResponderTimeout > 0 {
		c.GenerationTimeout = config.GetDuration(cfg.Pipeline.ResponderTimeout)
	}
	if cfg.Pipeline.ResponderMaxTokens > 0 {
		c.MaxTokens = cfg.Pipeline.ResponderMaxTokens
	}
	return c
}
