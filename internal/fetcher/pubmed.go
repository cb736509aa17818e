package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ryosukesatoh/lit-briefing/internal/config"
)

const pubmedBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedFetcher searches PubMed through the NCBI E-utilities. One Search runs
// a core-journal query and, when keywords and extended journals are both
// configured, a keyword query restricted to the extended journals.
type PubMedFetcher struct {
	client  *http.Client
	baseURL string
	cfg     config.PubMedConfig
	logger  zerolog.Logger
	markup  *bluemonday.Policy
}

func NewPubMedFetcher(cfg config.PubMedConfig, logger zerolog.Logger) *PubMedFetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = pubmedBaseURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	return &PubMedFetcher{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		logger:  logger.With().Str("source", "pubmed").Logger(),
		markup:  bluemonday.StrictPolicy(),
	}
}

func (f *PubMedFetcher) Name() string { return "pubmed" }

func (f *PubMedFetcher) Search(ctx context.Context, window Window, maxResults int, seen IDSet) ([]Paper, error) {
	pacer := newPacer(f.cfg.BatchDelay)
	var papers []Paper
	coreIDs := NewIDSet()

	if len(f.cfg.CoreJournals) > 0 {
		ids, err := f.esearch(ctx, pacer, f.coreQuery(window), maxResults)
		if err != nil {
			return nil, fmt.Errorf("pubmed: core search: %w", err)
		}
		for _, id := range ids {
			coreIDs.Add(id)
		}
		fresh := excludeIDs(ids, seen, nil)
		f.logger.Info().Int("found", len(ids)).Int("new", len(fresh)).Msg("core journal search")

		core, err := f.efetch(ctx, pacer, fresh, CategoryCore)
		if err != nil {
			return nil, fmt.Errorf("pubmed: core fetch: %w", err)
		}
		papers = append(papers, core...)
	}

	if len(f.cfg.Keywords) > 0 && len(f.cfg.ExtendedJournals) > 0 {
		ids, err := f.esearch(ctx, pacer, f.keywordQuery(window), maxResults)
		if err != nil {
			return nil, fmt.Errorf("pubmed: keyword search: %w", err)
		}
		fresh := excludeIDs(ids, seen, coreIDs)
		f.logger.Info().Int("found", len(ids)).Int("new", len(fresh)).Msg("extended keyword search")

		extended, err := f.efetch(ctx, pacer, fresh, CategoryExtended)
		if err != nil {
			return nil, fmt.Errorf("pubmed: keyword fetch: %w", err)
		}
		papers = append(papers, extended...)
	}

	return dedupe(papers, seen), nil
}

func (f *PubMedFetcher) coreQuery(w Window) string {
	return fmt.Sprintf("%s AND %s", orClause(f.cfg.CoreJournals, `"%s"[Journal]`), pdatClause(w))
}

func (f *PubMedFetcher) keywordQuery(w Window) string {
	q := fmt.Sprintf("%s AND %s AND %s",
		orClause(f.cfg.Keywords, `"%s"[Title/Abstract]`),
		orClause(f.cfg.ExtendedJournals, `"%s"[Journal]`),
		pdatClause(w),
	)
	if len(f.cfg.Species) > 0 {
		q += " AND " + orClause(f.cfg.Species, "%s")
	}
	return q
}

func orClause(terms []string, format string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf(format, t)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func pdatClause(w Window) string {
	return fmt.Sprintf(`("%s"[PDAT] : "%s"[PDAT])`, w.From.Format(LedgerDateLayout), w.To.Format(LedgerDateLayout))
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
	Error string `json:"error"`
}

func (f *PubMedFetcher) esearch(ctx context.Context, pacer *rate.Limiter, term string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("sort", "pub_date")
	params.Set("retmode", "json")
	if f.cfg.APIKey != "" {
		params.Set("api_key", f.cfg.APIKey)
	}

	body, err := get(ctx, f.client, pacer, "pubmed", f.baseURL+"/esearch.fcgi?"+params.Encode(), f.cfg.SearchTimeout)
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse esearch response: %w", err)
	}
	if resp.Error != "" {
		return nil, &APIError{Source: "pubmed", StatusCode: http.StatusOK, Message: resp.Error}
	}
	return resp.Result.IDList, nil
}

func (f *PubMedFetcher) efetch(ctx context.Context, pacer *rate.Limiter, ids []string, category string) ([]Paper, error) {
	var papers []Paper
	for start := 0; start < len(ids); start += f.cfg.BatchSize {
		end := min(start+f.cfg.BatchSize, len(ids))

		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("id", strings.Join(ids[start:end], ","))
		params.Set("retmode", "xml")
		params.Set("rettype", "abstract")
		if f.cfg.APIKey != "" {
			params.Set("api_key", f.cfg.APIKey)
		}

		body, err := get(ctx, f.client, pacer, "pubmed", f.baseURL+"/efetch.fcgi?"+params.Encode(), f.cfg.FetchTimeout)
		if err != nil {
			return nil, err
		}

		batch := f.parseArticles(body, category)
		f.logger.Debug().Int("requested", end-start).Int("parsed", len(batch)).Str("category", category).Msg("efetch batch")
		papers = append(papers, batch...)
	}
	return papers, nil
}

// excludeIDs keeps ids present in neither set, in order.
func excludeIDs(ids []string, a, b IDSet) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if a.Has(id) || b.Has(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// dedupe drops papers already seen or repeated within the slice.
func dedupe(papers []Paper, seen IDSet) []Paper {
	out := make([]Paper, 0, len(papers))
	emitted := NewIDSet()
	for _, p := range papers {
		if seen.Has(p.SourceID) || emitted.Has(p.SourceID) {
			continue
		}
		emitted.Add(p.SourceID)
		out = append(out, p)
	}
	return out
}
