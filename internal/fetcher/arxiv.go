package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/rs/zerolog"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
)

const arxivBaseURL = "http://export.arxiv.org/api/query"

// ArxivFetcher pages through the arXiv Atom API. The query grammar cannot
// express a date range, so entries are filtered by submission date locally.
type ArxivFetcher struct {
	client  *http.Client
	baseURL string
	cfg     config.ArxivConfig
	logger  zerolog.Logger
}

func NewArxivFetcher(cfg config.ArxivConfig, logger zerolog.Logger) *ArxivFetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = arxivBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ArxivFetcher{
		client:  &http.Client{},
		baseURL: baseURL,
		cfg:     cfg,
		logger:  logger.With().Str("source", "arxiv").Logger(),
	}
}

func (f *ArxivFetcher) Name() string { return "arxiv" }

// Query returns the combined search expression, or "" when neither
// categories nor keywords are configured.
func (f *ArxivFetcher) Query() string {
	var groups []string
	if len(f.cfg.Categories) > 0 {
		groups = append(groups, orClause(f.cfg.Categories, "cat:%s"))
	}
	if len(f.cfg.Keywords) > 0 {
		groups = append(groups, orClause(f.cfg.Keywords, `all:"%s"`))
	}
	return strings.Join(groups, " AND ")
}

func (f *ArxivFetcher) Search(ctx context.Context, window Window, maxResults int, seen IDSet) ([]Paper, error) {
	query := f.Query()
	if query == "" || maxResults <= 0 {
		return nil, nil
	}

	pacer := newPacer(f.cfg.PageDelay)
	pageSize := min(maxResults, f.cfg.PageSize)
	from := window.From.Format(time.DateOnly)
	to := window.To.Format(time.DateOnly)

	var papers []Paper
	emitted := NewIDSet()
	for start := 0; start < maxResults; start += pageSize {
		n := min(pageSize, maxResults-start)

		params := url.Values{}
		params.Set("search_query", query)
		params.Set("start", strconv.Itoa(start))
		params.Set("max_results", strconv.Itoa(n))
		params.Set("sortBy", "submittedDate")
		params.Set("sortOrder", "descending")

		body, err := get(ctx, f.client, pacer, "arxiv", f.baseURL+"?"+params.Encode(), f.cfg.Timeout)
		if err != nil {
			return nil, err
		}

		page, entries, err := f.parseFeed(body)
		if err != nil {
			return nil, err
		}

		kept := 0
		for _, p := range page {
			if !inWindow(p.PublicationDate, from, to) || seen.Has(p.SourceID) || emitted.Has(p.SourceID) {
				continue
			}
			emitted.Add(p.SourceID)
			papers = append(papers, p)
			kept++
		}
		f.logger.Debug().Int("start", start).Int("entries", entries).Int("kept", kept).Msg("arxiv page")

		if entries < n {
			break
		}
	}

	f.logger.Info().Int("new", len(papers)).Msg("arxiv search")
	return papers, nil
}

// inWindow compares YYYY-MM-DD prefixes. Dates that do not parse are kept.
func inWindow(published, from, to string) bool {
	if len(published) < 10 {
		return true
	}
	day := published[:10]
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return true
	}
	return day >= from && day <= to
}

var (
	feedStartRegex  = regexp.MustCompile(`<feed(\s[^>]*)?>`)
	entryChunkRegex = regexp.MustCompile(`(?s)<entry[\s>].*?</entry>`)
)

// parseFeed parses every entry separately, wrapped in the response's own
// <feed> start tag so namespace prefixes still resolve. It returns the
// parsed papers and the number of entries the page contained.
func (f *ArxivFetcher) parseFeed(body []byte) ([]Paper, int, error) {
	start := feedStartRegex.Find(body)
	if start == nil {
		return nil, 0, &APIError{Source: "arxiv", StatusCode: http.StatusOK, Message: "failed to parse feed: no <feed> element"}
	}

	chunks := entryChunkRegex.FindAll(body, -1)
	papers := make([]Paper, 0, len(chunks))
	for i, chunk := range chunks {
		p, err := parseEntry(start, chunk)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return nil, len(chunks), err
			}
			f.logger.Warn().Err(err).Int("entry", i).Msg("skipping malformed arXiv entry")
			continue
		}
		papers = append(papers, p)
	}
	return papers, len(chunks), nil
}

var errMissingArxivID = errors.New("entry has no arXiv id")

func parseEntry(feedStart, chunk []byte) (Paper, error) {
	doc := make([]byte, 0, len(feedStart)+len(chunk)+len("</feed>"))
	doc = append(doc, feedStart...)
	doc = append(doc, chunk...)
	doc = append(doc, "</feed>"...)

	fp := &atom.Parser{}
	feed, err := fp.Parse(bytes.NewReader(doc))
	if err != nil {
		return Paper{}, err
	}
	if len(feed.Entries) != 1 {
		return Paper{}, fmt.Errorf("expected one entry, got %d", len(feed.Entries))
	}
	e := feed.Entries[0]

	if strings.Contains(e.ID, "/api/errors") {
		return Paper{}, &APIError{Source: "arxiv", StatusCode: http.StatusOK, Message: collapse(e.Summary)}
	}

	id := e.ID
	if i := strings.Index(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	id = strings.TrimSpace(id)
	if id == "" || id == e.ID {
		return Paper{}, errMissingArxivID
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			authors = append(authors, strings.TrimSpace(a.Name))
		}
	}

	categories := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		if c != nil && c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	published := strings.TrimSpace(e.Published)
	if len(published) > 10 {
		published = published[:10]
	}

	doi := entryDOI(e)
	return Paper{
		Source:          SourceArxiv,
		SourceID:        id,
		Title:           collapse(e.Title),
		Abstract:        collapse(e.Summary),
		Authors:         authors,
		Journal:         "arXiv",
		JournalAbbr:     "arXiv",
		PublicationDate: published,
		DOI:             doi,
		URL:             PaperURL(SourceArxiv, id, doi),
		Categories:      categories,
	}, nil
}

func entryDOI(e *atom.Entry) string {
	if ns, ok := e.Extensions["arxiv"]; ok {
		if vals := ns["doi"]; len(vals) > 0 && strings.TrimSpace(vals[0].Value) != "" {
			return strings.TrimSpace(vals[0].Value)
		}
	}
	for _, l := range e.Links {
		if l != nil && l.Title == "doi" {
			return strings.TrimPrefix(strings.TrimPrefix(l.Href, "https://doi.org/"), "http://dx.doi.org/")
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
