package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// Anthropic speaks the Messages API.
type Anthropic struct {
	opts Options
	url  string
}

func NewAnthropic(opts Options) *Anthropic {
	url := anthropicURL
	if opts.BaseURL != "" {
		url = opts.BaseURL
	}
	return &Anthropic{opts: opts, url: url}
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (a *Anthropic) Call(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	reqBody := anthropicRequest{
		Model:       a.opts.Model,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: a.opts.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         a.opts.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var apiResp anthropicResponse
	if err := postJSON(ctx, a.opts, "anthropic", a.url, headers, reqBody, &apiResp, anthropicErrorMessage); err != nil {
		return "", err
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic: API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var sb strings.Builder
	for _, c := range apiResp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty response")
	}
	return strings.TrimSpace(sb.String()), nil
}

func anthropicErrorMessage(body []byte) string {
	var r anthropicResponse
	if json.Unmarshal(body, &r) == nil && r.Error != nil {
		return r.Error.Type + ": " + r.Error.Message
	}
	return ""
}
