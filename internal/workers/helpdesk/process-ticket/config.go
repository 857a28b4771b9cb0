// internal/workers/helpdesk/process-ticket/config.go
package processticket

import (
	"time"

	"helpdesk-workers/internal/common/config"
)

type Config struct {
	Timeout         time.Duration
	MaxTicketLength int
	SinkTimeout     time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:         90 * time.Second,
		MaxTicketLength: 2000,
		SinkTimeout:     5 * time.Second,
	}
	if cfg == nil {
		return c
	}
	if w := config.GetWorkerConfig(cfg, TaskType); w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	if cfg.Pipeline.MaxTicketLength > 0 {
		c.MaxTicketLength = cfg.Pipeline.MaxTicketLength
	}
	if cfg.Pipeline.SinkTimeout > 0 {
		c.SinkTimeout = config.GetDuration(cfg.Pipeline.SinkTimeout)
	}
	return c
}
