package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpdesk-workers/internal/common/config"
	"helpdesk-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanResponse(t *testing.T) {
	tests := map[string]string{
		"  IT  ":              "IT",
		`"Finance"`:           "Finance",
		"\"  quoted reply \"": "quoted reply",
		`"`:                   `"`,
		"":                    "",
		`He said "hi"`:        `He said "hi"`,
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanResponse(in), in)
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), "prompt", GreedyParams(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, IsUnavailable(err))
}

func TestFinish(t *testing.T) {
	ctx := context.Background()

	text, err := finish(ctx, "test", "  \"hello\" ", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = finish(ctx, "test", "   ", nil)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = finish(ctx, "test", "", errors.New("connection refused"))
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrTimeout))

	expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
	defer cancel()
	<-expired.Done()
	_, err = finish(expired, "test", "", errors.New("request aborted"))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, IsUnavailable(err))
}

func TestHTTPGenerator_Generate(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "\"IT\"\n"}`))
	}))
	defer server.Close()

	g := NewHTTPGenerator(server.URL+"/", "secret", "granite-3-8b-instruct", 5*time.Second)
	text, err := g.Generate(context.Background(), "classify this", GreedyParams(10))

	require.NoError(t, err)
	assert.Equal(t, "IT", text)
	assert.Equal(t, "classify this", got.Prompt)
	assert.Equal(t, 10, got.MaxTokens)
	assert.Equal(t, "greedy", got.DecodingMethod)
	assert.Equal(t, "granite-3-8b-instruct", got.Model)
}

func TestNew_HTTPWithKeycloakToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/helpdesk/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "kc-token", "token_type": "Bearer", "expires_in": 300}`))
	})
	mux.HandleFunc("/api/ai/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer kc-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"text": "HR"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	g, err := New(context.Background(), config.GenAIConfig{
		Provider: config.ProviderHTTP,
		BaseURL:  server.URL,
		APIKey:   "ignored",
		Timeout:  5000,
		Auth: config.GenAIAuthConfig{
			KeycloakURL:  server.URL,
			Realm:        "helpdesk",
			ClientID:     "helpdesk-workers",
			ClientSecret: "s3cret",
		},
	}, logger.NewTestLogger(t))
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "classify", GreedyParams(10))
	require.NoError(t, err)
	assert.Equal(t, "HR", text)
}

func TestNew_HTTPAuthMisconfigured(t *testing.T) {
	_, err := New(context.Background(), config.GenAIConfig{
		Provider: config.ProviderHTTP,
		BaseURL:  "http://localhost",
		Auth:     config.GenAIAuthConfig{ClientID: "helpdesk-workers"},
	}, logger.NewTestLogger(t))
	assert.Error(t, err)
}

func TestHTTPGenerator_ResponseShapes(t *testing.T) {
	bodies := map[string]string{
		"generated_text": `{"generated_text": "HR"}`,
		"results":        `{"results": [{"generated_text": "HR"}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			text, err := NewHTTPGenerator(server.URL, "", "", time.Second).Generate(context.Background(), "p", GreedyParams(5))
			require.NoError(t, err)
			assert.Equal(t, "HR", text)
		})
	}
}

func TestHTTPGenerator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: ErrUnavailable,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantErr: ErrUnavailable,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantErr: ErrUnavailable,
		},
		{
			name: "empty text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"text": "   "}`))
			},
			wantErr: ErrUnavailable,
		},
		{
			name: "slow backend",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantErr: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			text, err := NewHTTPGenerator(server.URL, "", "", 5*time.Second).Generate(ctx, "p", GreedyParams(5))
			assert.Empty(t, text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), err.Error())
		})
	}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.EqualValues(t, 10, req["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": " Finance "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
		}`))
	}))
	defer server.Close()

	g := NewOpenAIGenerator("test-key", server.URL+"/v1", "")
	text, err := g.Generate(context.Background(), "classify", GreedyParams(10))

	require.NoError(t, err)
	assert.Equal(t, "Finance", text)
	assert.Equal(t, "openai", g.Name())
}

func TestOpenAIGenerator_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAIGenerator("test-key", server.URL+"/v1", "").Generate(context.Background(), "p", GreedyParams(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 300, req["max_tokens"])
		assert.EqualValues(t, 0, req["temperature"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "Please reset your VPN password via the IT portal."}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 12}
		}`))
	}))
	defer server.Close()

	g := NewAnthropicGenerator("test-key", server.URL, "")
	text, err := g.Generate(context.Background(), "reply", GreedyParams(300))

	require.NoError(t, err)
	assert.Equal(t, "Please reset your VPN password via the IT portal.", text)
}

func TestAnthropicGenerator_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer server.Close()

	_, err := NewAnthropicGenerator("bad-key", server.URL, "").Generate(context.Background(), "p", GreedyParams(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestNewGeminiGenerator_RequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), "", "")
	assert.Error(t, err)
}

func TestNew_Providers(t *testing.T) {
	log := logger.NewTestLogger(t)
	ctx := context.Background()

	tests := []struct {
		cfg      config.GenAIConfig
		wantName string
		wantErr  bool
	}{
		{cfg: config.GenAIConfig{Provider: config.ProviderHTTP, BaseURL: "http://localhost"}, wantName: "http"},
		{cfg: config.GenAIConfig{Provider: config.ProviderOpenAI, APIKey: "k"}, wantName: "openai"},
		{cfg: config.GenAIConfig{Provider: config.ProviderAnthropic, APIKey: "k"}, wantName: "anthropic"},
		{cfg: config.GenAIConfig{Provider: config.ProviderDisabled}, wantName: "disabled"},
		{cfg: config.GenAIConfig{Provider: "watsonx"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			g, err := New(ctx, tt.cfg, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, g.Name())
		})
	}
}

func TestInstrumented_PassesThrough(t *testing.T) {
	calls := 0
	inner := GeneratorFunc(func(ctx context.Context, prompt string, params Params) (string, error) {
		calls++
		if prompt == "fail" {
			return "", ErrTimeout
		}
		return "ok", nil
	})
	g := Instrument(inner, logger.NewTestLogger(t))

	text, err := g.Generate(context.Background(), "hello", GreedyParams(5))
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	_, err = g.Generate(context.Background(), "fail", GreedyParams(5))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, calls)
	assert.NoError(t, g.Close())
}

func TestProbe(t *testing.T) {
	var got Params
	g := GeneratorFunc(func(ctx context.Context, prompt string, params Params) (string, error) {
		got = params
		return "ready", nil
	})
	require.NoError(t, Probe(context.Background(), g))
	assert.Equal(t, DecodingGreedy, got.Decoding)

	assert.Error(t, Probe(context.Background(), Disabled{}))
}

func TestDescribe(t *testing.T) {
	info := Describe(config.GenAIConfig{Model: "granite"}, 300)
	assert.Equal(t, Info{Provider: "http", Model: "granite", MaxTokens: 300, Decoding: DecodingGreedy}, info)

	info = Describe(config.GenAIConfig{Provider: config.ProviderDisabled, Model: "unused"}, 300)
	assert.Equal(t, "disabled", info.Provider)
	assert.Empty(t, info.Model)
}
