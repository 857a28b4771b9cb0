// internal/workers/helpdesk/score-confidence/config.go
package scoreconfidence

import (
	"time"

	"helpdesk-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// ModelAssisted asks the generator for a score before using the heuristic.
	ModelAssisted     bool
	GenerationTimeout time.Duration
	MaxTokens         int
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:           15 * time.Second,
		GenerationTimeout: 10 * time.Second,
		MaxTokens:         5,
	}
	if cfg == nil {
		return c
	}
	if w := config.GetWorkerConfig(cfg, TaskType); w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	c.ModelAssisted = cfg.Pipeline.ScorerModelAssisted
	if cfg.Pipeline.ScorerTimeout > 0 {
		c.GenerationTimeout = config.GetDuration(cfg.Pipeline.ScorerTimeout)
	}
	return c
}
