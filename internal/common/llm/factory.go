package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"helpdesk-workers/internal/common/auth"
	"helpdesk-workers/internal/common/config"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
)

// New builds the generator selected by cfg.Provider, wrapped with metrics and logging.
func New(ctx context.Context, cfg config.GenAIConfig, log logger.Logger) (*Instrumented, error) {
	var g Generator
	switch cfg.Provider {
	case config.ProviderHTTP, "":
		h := NewHTTPGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, config.GetDuration(cfg.Timeout))
		creds := auth.ClientCredentials(cfg.Auth)
		if creds.ClientID != "" {
			ts, err := auth.NewTokenSource(ctx, creds)
			if err != nil {
				return nil, fmt.Errorf("genai auth: %w", err)
			}
			h.WithTokenSource(ts)
		}
		g = h
	case config.ProviderOpenAI:
		g = NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case config.ProviderAnthropic:
		g = NewAnthropicGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case config.ProviderGemini:
		gem, err := NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		g = gem
	case config.ProviderDisabled:
		g = Disabled{}
	default:
		return nil, fmt.Errorf("unsupported genai provider %q", cfg.Provider)
	}
	return Instrument(g, log), nil
}

// Instrumented records metrics and debug logs around another Generator.
type Instrumented struct {
	next   Generator
	logger logger.Logger
}

func Instrument(g Generator, log logger.Logger) *Instrumented {
	return &Instrumented{
		next:   g,
		logger: log.WithFields(map[string]interface{}{"provider": g.Name()}),
	}
}

func (i *Instrumented) Name() string { return i.next.Name() }

// Close releases the underlying client when it holds one.
func (i *Instrumented) Close() error {
	if c, ok := i.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (i *Instrumented) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	start := time.Now()
	text, err := i.next.Generate(ctx, prompt, params)
	elapsed := time.Since(start)

	metrics.GenerationDuration.WithLabelValues(i.next.Name()).Observe(elapsed.Seconds())

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		status = "timeout"
	case errors.Is(err, ErrUnavailable):
		status = "unavailable"
	default:
		status = "error"
	}
	metrics.GenerationRequests.WithLabelValues(i.next.Name(), status).Inc()

	fields := map[string]interface{}{
		"maxTokens":  params.MaxTokens,
		"decoding":   string(params.Decoding),
		"durationMs": elapsed.Milliseconds(),
		"status":     status,
	}
	if err != nil {
		fields["error"] = err.Error()
		i.logger.Warn("generation failed", fields)
	} else {
		i.logger.Debug("generation completed", fields)
	}
	return text, err
}

// Describe reports the backend cfg selects, using the responder token limit.
func Describe(cfg config.GenAIConfig, maxTokens int) Info {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderHTTP
	}
	info := Info{Provider: provider, MaxTokens: maxTokens, Decoding: DecodingGreedy}
	if provider != config.ProviderDisabled {
		info.Model = cfg.Model
	}
	return info
}
