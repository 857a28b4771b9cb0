package llm

import (
	"context"
	"math"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds a chat-completions backend. baseURL may point at
// any OpenAI compatible server and is left at the SDK default when empty.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   params.MaxTokens,
		Temperature: float32(params.Temperature),
	}
	if params.Decoding == DecodingGreedy || req.Temperature == 0 {
		// a zero temperature is dropped by omitempty and the API then samples at 1.0
		req.Temperature = math.SmallestNonzeroFloat32
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return finish(ctx, g.Name(), "", err)
	}
	if len(resp.Choices) == 0 {
		return finish(ctx, g.Name(), "", nil)
	}
	return finish(ctx, g.Name(), resp.Choices[0].Message.Content, nil)
}
