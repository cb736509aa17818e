package publisher

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 860px; margin: 0 auto; padding: 20px; color: #333; }
pre { white-space: pre-wrap; word-wrap: break-word; font-family: inherit; line-height: 1.5; }
.meta { color: #666; font-size: 0.9em; }
</style></head><body>
{{if .Markdown}}<p class="meta">{{.File}} &middot; <a href="/latest.md">raw</a></p>
<pre>{{.Markdown}}</pre>{{else}}<h1>Literature Briefing</h1>
<p>No briefing available yet. Check back later.</p>{{end}}
</body></html>
`))

// WebPublisher serves the latest briefing and the process metrics over HTTP.
type WebPublisher struct {
	addr   string
	server *http.Server
	logger zerolog.Logger

	mu     sync.RWMutex
	latest *Report
}

func NewWebPublisher(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *WebPublisher {
	wp := &WebPublisher{addr: addr, logger: logger.With().Str("publisher", "web").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/", wp.handleIndex)
	r.Get("/latest.md", wp.handleLatest)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	wp.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return wp
}

func (wp *WebPublisher) Name() string { return "web" }

// Handler exposes the router, mainly for tests.
func (wp *WebPublisher) Handler() http.Handler {
	return wp.server.Handler
}

// Start begins serving HTTP in the background. Call Shutdown to stop.
func (wp *WebPublisher) Start() error {
	ln, err := net.Listen("tcp", wp.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", wp.addr, err)
	}
	go func() {
		wp.logger.Info().Str("addr", ln.Addr().String()).Msg("web publisher listening")
		if err := wp.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wp.logger.Error().Err(err).Msg("web publisher stopped")
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (wp *WebPublisher) Shutdown(ctx context.Context) error {
	return wp.server.Shutdown(ctx)
}

func (wp *WebPublisher) Publish(_ context.Context, report *Report) error {
	wp.mu.Lock()
	wp.latest = report
	wp.mu.Unlock()
	wp.logger.Debug().Str("path", report.Path).Msg("web publisher updated")
	return nil
}

func (wp *WebPublisher) current() *Report {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.latest
}

func (wp *WebPublisher) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data := struct {
		Title    string
		File     string
		Markdown string
	}{Title: "Literature Briefing"}

	if r := wp.current(); r != nil {
		data.Title = r.Briefing.Title()
		data.File = r.Path
		data.Markdown = r.Markdown
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		wp.logger.Warn().Err(err).Msg("failed to render index")
	}
}

func (wp *WebPublisher) handleLatest(w http.ResponseWriter, _ *http.Request) {
	r := wp.current()
	if r == nil {
		http.Error(w, "no briefing yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(r.Markdown))
}
