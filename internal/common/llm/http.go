package llm

import (
	"context"
	"strings"
	"time"

	httpclient "helpdesk-workers/internal/common/http"

	"golang.org/x/oauth2"
)

// HTTPGenerator calls a GenAI gateway exposing POST /api/ai/generate.
type HTTPGenerator struct {
	baseURL string
	model   string
	client  *httpclient.Client
}

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model,omitempty"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	DecodingMethod string  `json:"decoding_method"`
}

type generateResponse struct {
	Text          string `json:"text"`
	GeneratedText string `json:"generated_text"`
	Results       []struct {
		GeneratedText string `json:"generated_text"`
	} `json:"results"`
}

func (r generateResponse) output() string {
	switch {
	case r.Text != "":
		return r.Text
	case r.GeneratedText != "":
		return r.GeneratedText
	case len(r.Results) > 0:
		return r.Results[0].GeneratedText
	}
	return ""
}

func NewHTTPGenerator(baseURL, apiKey, model string, timeout time.Duration) *HTTPGenerator {
	client := httpclient.NewClient(timeout)
	if apiKey != "" {
		client.WithHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

// WithTokenSource switches the gateway to OAuth2 bearer tokens.
func (g *HTTPGenerator) WithTokenSource(ts oauth2.TokenSource) *HTTPGenerator {
	g.client.WithTokenSource(ts)
	return g
}

func (g *HTTPGenerator) Name() string { return "http" }

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	decoding := params.Decoding
	if decoding == "" {
		decoding = DecodingGreedy
	}

	var resp generateResponse
	err := g.client.PostJSON(ctx, g.baseURL+"/api/ai/generate", generateRequest{
		Prompt:         prompt,
		Model:          g.model,
		MaxTokens:      params.MaxTokens,
		Temperature:    params.Temperature,
		DecodingMethod: string(decoding),
	}, &resp)

	return finish(ctx, g.Name(), resp.output(), err)
}
