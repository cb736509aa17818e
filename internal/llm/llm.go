// Package llm calls large-language-model providers through a single
// prompt-in, text-out operation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
)

// Provider is one LLM wire protocol.
type Provider interface {
	Name() string
	// Call sends prompt with an optional system instruction and returns the
	// trimmed completion text.
	Call(ctx context.Context, prompt, system string, maxTokens int) (string, error)
}

// Options configures a provider.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{}
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 90 * time.Second
}

// APIError is a non-2xx answer or an error object returned by a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether a later attempt may succeed.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var providers = map[string]func(Options) Provider{
	"openrouter": func(o Options) Provider { return NewOpenAICompatible("openrouter", openRouterURL, o) },
	"openai":     func(o Options) Provider { return NewOpenAICompatible("openai", openAIURL, o) },
	"claude":     func(o Options) Provider { return NewAnthropic(o) },
	"anthropic":  func(o Options) Provider { return NewAnthropic(o) },
	"gemini":     func(o Options) Provider { return NewGemini(o) },
}

// Names lists the registered providers.
func Names() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the provider registered under name.
func New(name string, opts Options) (Provider, error) {
	ctor, ok := providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: %s api key is not set", name)
	}
	return ctor(opts), nil
}

// FromConfig builds the configured provider.
func FromConfig(cfg config.LLMConfig) (Provider, error) {
	return New(cfg.Provider, Options{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
}

// postJSON sends body and decodes a 2xx response into out. Non-2xx
// responses become an *APIError carrying errMessage's reading of the body.
func postJSON(ctx context.Context, o Options, provider, url string, headers map[string]string, body, out any, errMessage func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := o.client().Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errMessage(respBody)
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", provider, err)
	}
	return nil
}
