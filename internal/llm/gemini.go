package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini speaks the Generative Language generateContent API.
type Gemini struct {
	opts    Options
	baseURL string
}

func NewGemini(opts Options) *Gemini {
	base := geminiBaseURL
	if opts.BaseURL != "" {
		base = strings.TrimRight(opts.BaseURL, "/")
	}
	return &Gemini{opts: opts, baseURL: base}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (g *Gemini) Call(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.opts.Temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent", g.baseURL, url.PathEscape(g.opts.Model))
	headers := map[string]string{"x-goog-api-key": g.opts.APIKey}

	var resp geminiResponse
	if err := postJSON(ctx, g.opts, "gemini", endpoint, headers, reqBody, &resp, geminiErrorMessage); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini: API error: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func geminiErrorMessage(body []byte) string {
	var r geminiResponse
	if json.Unmarshal(body, &r) == nil && r.Error != nil {
		return r.Error.Status + ": " + r.Error.Message
	}
	return ""
}
