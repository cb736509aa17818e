package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	openAIURL     = "https://api.openai.com/v1/chat/completions"
)

// OpenAICompatible speaks the chat-completions protocol shared by OpenAI
// and OpenRouter.
type OpenAICompatible struct {
	name string
	url  string
	opts Options
}

func NewOpenAICompatible(name, defaultURL string, opts Options) *OpenAICompatible {
	url := defaultURL
	if opts.BaseURL != "" {
		url = opts.BaseURL
	}
	return &OpenAICompatible{name: name, url: url, opts: opts}
}

func (p *OpenAICompatible) Name() string { return p.name }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *chatError `json:"error,omitempty"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (p *OpenAICompatible) Call(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{
		Model:       p.opts.Model,
		Messages:    messages,
		Temperature: p.opts.Temperature,
		MaxTokens:   maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.opts.APIKey}
	if p.name == "openrouter" {
		headers["X-Title"] = "lit-briefing"
	}

	var resp chatResponse
	if err := postJSON(ctx, p.opts, p.name, p.url, headers, reqBody, &resp, chatErrorMessage); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s: API error: %s", p.name, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", p.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func chatErrorMessage(body []byte) string {
	var r chatResponse
	if json.Unmarshal(body, &r) == nil && r.Error != nil {
		return r.Error.Message
	}
	return ""
}
