// Package publisher delivers a finished briefing: the mandatory file write
// plus the optional notification outputs.
package publisher

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
	"github.com/ryosukesatoh/lit-briefing/internal/render"
)

// Report is a rendered briefing handed to publishers.
type Report struct {
	Briefing render.Briefing
	Markdown string
	// Path is where the document was written; empty on a dry run.
	Path string
}

// Publisher publishes a report to some output destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, report *Report) error
}

// FromConfig builds the publishers named in cfg.Types, in order. The web
// publisher is created but not started.
func FromConfig(cfg config.PublisherConfig, stdout io.Writer, gatherer prometheus.Gatherer, logger zerolog.Logger) ([]Publisher, error) {
	var pubs []Publisher
	for _, t := range cfg.Types {
		switch t {
		case "stdout":
			pubs = append(pubs, NewStdoutPublisher(stdout))
		case "discord":
			pubs = append(pubs, NewDiscordPublisher(cfg.Discord.WebhookURL))
		case "email":
			e := cfg.Email
			pubs = append(pubs, NewEmailPublisher(e.SMTPHost, e.SMTPPort, e.Username, e.Password, e.From, e.To))
		case "web":
			pubs = append(pubs, NewWebPublisher(cfg.Web.Addr, gatherer, logger))
		default:
			return nil, fmt.Errorf("publisher: unknown type %q", t)
		}
	}
	return pubs, nil
}
