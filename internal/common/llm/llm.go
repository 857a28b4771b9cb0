// Package llm wraps the text generation backends used by the helpdesk stages
// behind a single synchronous Generate call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Decoding selects how the backend picks tokens.
type Decoding string

const (
	DecodingGreedy   Decoding = "greedy"
	DecodingSampling Decoding = "sampling"
)

var (
	// ErrUnavailable covers transport, auth, malformed and empty responses.
	ErrUnavailable = errors.New("GENERATION_UNAVAILABLE")
	// ErrTimeout is returned when the call exceeds its deadline.
	ErrTimeout = errors.New("GENERATION_TIMEOUT")
)

// Params bounds a single generation call.
type Params struct {
	MaxTokens   int
	Temperature float64
	Decoding    Decoding
}

// GreedyParams returns deterministic decoding with the given token budget.
func GreedyParams(maxTokens int) Params {
	return Params{MaxTokens: maxTokens, Temperature: 0, Decoding: DecodingGreedy}
}

// Generator produces text for a prompt. Implementations must return an error
// wrapping ErrUnavailable or ErrTimeout instead of empty text.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
	Name() string
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, params Params) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	return f(ctx, prompt, params)
}

func (f GeneratorFunc) Name() string { return "func" }

// Disabled always fails. It is used when no backend is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, Params) (string, error) {
	return "", fmt.Errorf("%w: generation disabled", ErrUnavailable)
}

func (Disabled) Name() string { return "disabled" }

// IsUnavailable reports whether err is any generation failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// CleanResponse trims whitespace and one pair of wrapping double quotes.
func CleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// finish normalizes a backend result: cleans the text, maps context expiry to
// ErrTimeout and everything else, including empty output, to ErrUnavailable.
func finish(ctx context.Context, provider, text string, err error) (string, error) {
	if err != nil {
		var te interface{ Timeout() bool }
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &te) && te.Timeout()) {
			return "", fmt.Errorf("%w: %s: %v", ErrTimeout, provider, err)
		}
		if IsUnavailable(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, provider, err)
	}
	text = CleanResponse(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned empty output", ErrUnavailable, provider)
	}
	return text, nil
}

// Probe issues a tiny request to check that the backend answers.
func Probe(ctx context.Context, g Generator) error {
	_, err := g.Generate(ctx, "Reply with the single word: ready", GreedyParams(5))
	return err
}

// Info describes the configured backend for health and status endpoints.
type Info struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model,omitempty"`
	MaxTokens int      `json:"maxTokens"`
	Decoding  Decoding `json:"decoding"`
}
