package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
)

// Source identifies the bibliographic API a paper came from.
type Source string

const (
	SourcePubMed Source = "PUBMED"
	SourceArxiv  Source = "ARXIV"
)

// PubMed search categories.
const (
	CategoryCore     = "core"
	CategoryExtended = "extended"
)

// Paper is the normalized record of one publication. Everything except the
// two translated fields is set by the adapter that produced it.
type Paper struct {
	Source          Source   `json:"source"`
	SourceID        string   `json:"source_id"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	Authors         []string `json:"authors"`
	Journal         string   `json:"journal"`
	JournalAbbr     string   `json:"journal_abbr"`
	PublicationDate string   `json:"publication_date"`
	DOI             string   `json:"doi,omitempty"`
	URL             string   `json:"url"`
	Categories      []string `json:"categories"`

	TitleTranslated    string `json:"title_translated,omitempty"`
	AbstractTranslated string `json:"abstract_translated,omitempty"`
}

// Key is the run-wide identity of a paper.
type Key struct {
	Source   Source
	SourceID string
}

func (p Paper) Key() Key {
	return Key{Source: p.Source, SourceID: p.SourceID}
}

// HasCategory reports whether c is one of the paper's categories.
func (p Paper) HasCategory(c string) bool {
	for _, pc := range p.Categories {
		if pc == c {
			return true
		}
	}
	return false
}

// PaperURL returns the DOI resolver link when a DOI is known, otherwise the
// source permalink.
func PaperURL(source Source, id, doi string) string {
	if doi != "" {
		return "https://doi.org/" + doi
	}
	switch source {
	case SourcePubMed:
		return fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", id)
	case SourceArxiv:
		return "https://arxiv.org/abs/" + id
	}
	return ""
}

// Window is the inclusive date range covered by one run.
type Window struct {
	From time.Time
	To   time.Time
}

// LedgerDateLayout is the date grammar shared by the ledger and PubMed.
const LedgerDateLayout = "2006/01/02"

func (w Window) String() string {
	return w.From.Format(LedgerDateLayout) + " ~ " + w.To.Format(LedgerDateLayout)
}

// IDSet is a set of source identifiers. A nil IDSet contains nothing.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Fetcher searches one literature source.
type Fetcher interface {
	// Name is the registry key of the source.
	Name() string
	// Search returns papers inside the window whose id is not in seen.
	// maxResults bounds the ids requested per logical query.
	Search(ctx context.Context, window Window, maxResults int, seen IDSet) ([]Paper, error)
}

// Constructor builds a fetcher from configuration.
type Constructor func(cfg *config.Config, logger zerolog.Logger) Fetcher

var registry = map[string]Constructor{
	"pubmed": func(cfg *config.Config, logger zerolog.Logger) Fetcher {
		return NewPubMedFetcher(cfg.PubMed, logger)
	},
	"arxiv": func(cfg *config.Config, logger zerolog.Logger) Fetcher {
		return NewArxivFetcher(cfg.Arxiv, logger)
	},
}

// Names lists the registered sources.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the fetcher registered under name.
func New(name string, cfg *config.Config, logger zerolog.Logger) (Fetcher, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("fetcher: unknown source %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(cfg, logger), nil
}
