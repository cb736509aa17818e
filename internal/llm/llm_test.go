package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
)

func newLLMTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestOpenRouterCall(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.Equal(t, "lit-briefing", r.Header.Get("X-Title"))

		body := decodeBody(t, r)
		assert.Equal(t, "google/gemini-2.0-flash-001", body["model"])
		assert.Equal(t, 0.1, body["temperature"])
		assert.Equal(t, 1500.0, body["max_tokens"])

		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "translate", messages[0].(map[string]any)["content"])
		assert.Equal(t, "user", messages[1].(map[string]any)["role"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  你好  "}}]}`))
	})

	p, err := New("openrouter", Options{APIKey: "or-key", Model: "google/gemini-2.0-flash-001", BaseURL: ts.URL, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())

	out, err := p.Call(context.Background(), "hello", "translate", 1500)
	require.NoError(t, err)
	assert.Equal(t, "你好", out)
}

func TestOpenAIOmitsEmptySystem(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		messages := body["messages"].([]any)
		require.Len(t, messages, 1)
		assert.Empty(t, r.Header.Get("X-Title"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	p, err := New("openai", Options{APIKey: "k", Model: "gpt-4o-mini", BaseURL: ts.URL})
	require.NoError(t, err)

	out, err := p.Call(context.Background(), "hello", "", 10)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	p, err := New("openai", Options{APIKey: "k", BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = p.Call(context.Background(), "hello", "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestAnthropicCall(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ant-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		body := decodeBody(t, r)
		assert.Equal(t, "be terse", body["system"])
		assert.Equal(t, 200.0, body["max_tokens"])

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"- 1. great"},{"type":"text","text":" paper"}]}`))
	})

	p, err := New("claude", Options{APIKey: "ant-key", Model: "claude-sonnet-4-20250514", BaseURL: ts.URL})
	require.NoError(t, err)

	out, err := p.Call(context.Background(), "pick", "be terse", 200)
	require.NoError(t, err)
	assert.Equal(t, "- 1. great paper", out)
}

func TestAnthropicErrorStatus(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	p, err := New("anthropic", Options{APIKey: "k", BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = p.Call(context.Background(), "pick", "", 10)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "slow down")
	assert.True(t, apiErr.IsTransient())
}

func TestGeminiCall(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gem-key", r.Header.Get("x-goog-api-key"))

		body := decodeBody(t, r)
		sys := body["systemInstruction"].(map[string]any)
		assert.Equal(t, "translate", sys["parts"].([]any)[0].(map[string]any)["text"])
		gen := body["generationConfig"].(map[string]any)
		assert.Equal(t, 300.0, gen["maxOutputTokens"])

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"译文"}]},"finishReason":"STOP"}]}`))
	})

	p, err := New("gemini", Options{APIKey: "gem-key", Model: "gemini-2.0-flash", BaseURL: ts.URL})
	require.NoError(t, err)

	out, err := p.Call(context.Background(), "text", "translate", 300)
	require.NoError(t, err)
	assert.Equal(t, "译文", out)
}

func TestGeminiErrorStatus(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	})

	p, err := New("gemini", Options{APIKey: "bad", Model: "gemini-2.0-flash", BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = p.Call(context.Background(), "text", "", 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INVALID_ARGUMENT: API key not valid", apiErr.Message)
	assert.False(t, apiErr.IsTransient())
}

func TestCallTimeout(t *testing.T) {
	ts := newLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	p, err := New("openai", Options{APIKey: "k", BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Call(context.Background(), "hello", "", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRejectsUnknownProviderAndMissingKey(t *testing.T) {
	_, err := New("mistral", Options{APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	_, err = New("openrouter", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().LLM
	cfg.APIKey = "k"

	p, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())

	assert.Equal(t, []string{"anthropic", "claude", "gemini", "openai", "openrouter"}, Names())
}
