package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ryosukesatoh/lit-briefing/internal/fetcher"
	"github.com/ryosukesatoh/lit-briefing/internal/retry"
)

const (
	discordColor     = 0x2E86AB
	maxPaperEmbeds   = 25
	discordBatchWait = 500 * time.Millisecond
)

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	URL         string              `json:"url,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordPublisher announces briefings in a Discord channel via webhook.
type DiscordPublisher struct {
	webhookURL  string
	client      *http.Client
	retryConfig retry.Config
	batchWait   time.Duration
}

func NewDiscordPublisher(webhookURL string) *DiscordPublisher {
	return &DiscordPublisher{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.DefaultConfig(),
		batchWait:   discordBatchWait,
	}
}

func (d *DiscordPublisher) Name() string { return "discord" }

// Publish sends a summary embed followed by one embed per paper.
func (d *DiscordPublisher) Publish(ctx context.Context, report *Report) error {
	batches := batchEmbeds(buildEmbeds(report))

	for i, batch := range batches {
		err := retry.WithBackoff(ctx, d.retryConfig, func(ctx context.Context) error {
			return d.sendWebhook(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("discord: failed to send batch %d: %w", i+1, err)
		}

		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.batchWait):
			}
		}
	}
	return nil
}

func buildEmbeds(report *Report) []discordEmbed {
	b := report.Briefing
	sections := b.Sections()

	summary := discordEmbed{
		Title:     truncate(b.Title(), 256),
		Color:     discordColor,
		Timestamp: b.GeneratedAt.Format(time.RFC3339),
		Footer:    &discordEmbedFooter{Text: "Window: " + b.Window.String()},
	}
	switch {
	case b.Total() == 0:
		summary.Description = "No new literature found in this window."
	case strings.TrimSpace(b.Highlights) != "":
		summary.Description = truncate(b.Highlights, 4096)
	}
	for _, s := range sections {
		summary.Fields = append(summary.Fields, discordEmbedField{
			Name:   s.Label,
			Value:  strconv.Itoa(len(s.Papers)),
			Inline: true,
		})
	}
	for _, w := range b.Warnings {
		summary.Fields = append(summary.Fields, discordEmbedField{Name: "Warning", Value: truncate(w, 1024)})
	}
	if report.Path != "" {
		summary.Fields = append(summary.Fields, discordEmbedField{Name: "File", Value: filepath.Base(report.Path)})
	}

	embeds := []discordEmbed{summary}
	n := 0
	for _, s := range sections {
		for _, p := range s.Papers {
			if n == maxPaperEmbeds {
				return embeds
			}
			embeds = append(embeds, paperEmbed(p))
			n++
		}
	}
	return embeds
}

func paperEmbed(p fetcher.Paper) discordEmbed {
	title := p.Title
	if p.TitleTranslated != "" {
		title = p.TitleTranslated
	}
	abstract := p.AbstractTranslated
	if abstract == "" {
		abstract = p.Abstract
	}

	journal := p.JournalAbbr
	if journal == "" {
		journal = p.Journal
	}
	footer := journal
	if p.PublicationDate != "" {
		footer += " | " + p.PublicationDate
	}

	return discordEmbed{
		Title:       truncate(title, 256),
		URL:         p.URL,
		Description: truncate(abstract, 400),
		Color:       discordColor,
		Footer:      &discordEmbedFooter{Text: truncate(footer, 2048)},
	}
}

// batchEmbeds splits embeds into batches respecting Discord limits:
// max 10 embeds per message, max 6000 total characters per message.
func batchEmbeds(embeds []discordEmbed) [][]discordEmbed {
	var batches [][]discordEmbed
	var current []discordEmbed
	currentChars := 0

	for _, e := range embeds {
		ec := embedCharCount(e)

		if len(current) > 0 && (len(current) >= 10 || currentChars+ec > 6000) {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}

		current = append(current, e)
		currentChars += ec
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

func (d *DiscordPublisher) sendWebhook(ctx context.Context, embeds []discordEmbed) error {
	body, err := json.Marshal(discordWebhookPayload{Embeds: embeds})
	if err != nil {
		return fmt.Errorf("marshal payload: %w: %w", err, retry.ErrPermanent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w: %w", err, retry.ErrPermanent)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// truncate shortens s to max runes, preferring a sentence boundary.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}

	cut := string(r[:max-1])
	if idx := strings.LastIndexAny(cut, ".!?"); idx > len(cut)/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}

// embedCharCount returns the total character count of an embed for batching purposes.
func embedCharCount(e discordEmbed) int {
	n := len([]rune(e.Title)) + len([]rune(e.Description))
	for _, f := range e.Fields {
		n += len([]rune(f.Name)) + len([]rune(f.Value))
	}
	if e.Footer != nil {
		n += len([]rune(e.Footer.Text))
	}
	return n
}
