// Package render turns a run's papers into the Markdown briefing.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/ryosukesatoh/lit-briefing/internal/fetcher"
)

const (
	maxAuthors        = 5
	maxArxivCats      = 3
	abstractPreview   = 600
	noLiteratureLine  = "No new literature found in this window."
	headerTimeLayout  = "2006-01-02 15:04"
	fileNameTimestamp = "20060102_1504"
)

// Briefing is everything one document is rendered from.
type Briefing struct {
	GeneratedAt time.Time
	Window      fetcher.Window
	// Sources lists the enabled sources in run order; it decides which
	// counters appear in the summary line.
	Sources    []string
	Papers     []fetcher.Paper
	Highlights string
	Warnings   []string
}

// Options tweaks the output without changing the body.
type Options struct {
	FrontMatter bool
}

// Section is one rendered group of papers.
type Section struct {
	Label   string
	Heading string
	Papers  []fetcher.Paper
	// Grouped sections are split by journal.
	Grouped bool
}

// Sections splits the papers into the document's sections, keeping run
// order inside each. Sections of disabled sources are omitted.
func (b Briefing) Sections() []Section {
	var out []Section
	for _, src := range b.Sources {
		switch src {
		case "pubmed":
			core := Section{Label: "pubmed/core", Heading: "Core Journals", Grouped: true}
			extended := Section{Label: "pubmed/extended", Heading: "Keyword Matches (Extended Journals)", Grouped: true}
			for _, p := range b.Papers {
				if p.Source != fetcher.SourcePubMed {
					continue
				}
				if p.HasCategory(fetcher.CategoryExtended) {
					extended.Papers = append(extended.Papers, p)
				} else {
					core.Papers = append(core.Papers, p)
				}
			}
			out = append(out, core, extended)
		case "arxiv":
			s := Section{Label: "arxiv", Heading: "arXiv Preprints"}
			for _, p := range b.Papers {
				if p.Source == fetcher.SourceArxiv {
					s.Papers = append(s.Papers, p)
				}
			}
			out = append(out, s)
		}
	}
	return out
}

// Total is the number of papers that will be rendered.
func (b Briefing) Total() int {
	n := 0
	for _, s := range b.Sections() {
		n += len(s.Papers)
	}
	return n
}

// Title is the document's first heading without the leading "#".
func (b Briefing) Title() string {
	return "Literature Briefing " + b.GeneratedAt.Format(headerTimeLayout)
}

// FileName names the document after its generation minute.
func FileName(t time.Time) string {
	return "briefing_" + t.Format(fileNameTimestamp) + ".md"
}

// Render produces the document. The output depends only on b and opts.
func Render(b Briefing, opts Options) string {
	sections := b.Sections()

	var sb strings.Builder
	if opts.FrontMatter {
		sb.WriteString(frontMatter(b, sections))
	}

	fmt.Fprintf(&sb, "# %s\n\n", b.Title())
	fmt.Fprintf(&sb, "> Window: %s\n", b.Window)

	counts := make([]string, 0, len(sections))
	total := 0
	for _, s := range sections {
		counts = append(counts, fmt.Sprintf("%s: %d", s.Label, len(s.Papers)))
		total += len(s.Papers)
	}
	fmt.Fprintf(&sb, "> %s\n", strings.Join(counts, " | "))
	for _, w := range b.Warnings {
		fmt.Fprintf(&sb, "> Warning: %s\n", w)
	}
	sb.WriteString("\n")

	if total == 0 {
		sb.WriteString(noLiteratureLine + "\n")
		return sb.String()
	}

	if h := strings.TrimSpace(b.Highlights); h != "" {
		sb.WriteString("---\n## Highlights\n\n")
		sb.WriteString(h)
		sb.WriteString("\n\n")
	}

	for _, s := range sections {
		if len(s.Papers) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "---\n## %s\n\n", s.Heading)
		if !s.Grouped {
			for _, p := range s.Papers {
				writePaper(&sb, p)
			}
			continue
		}
		for _, g := range groupByJournal(s.Papers) {
			fmt.Fprintf(&sb, "### %s (%d)\n\n", g.journal, len(g.papers))
			for _, p := range g.papers {
				writePaper(&sb, p)
			}
		}
	}

	return sb.String()
}

type journalGroup struct {
	journal string
	papers  []fetcher.Paper
}

// groupByJournal groups by abbreviation, falling back to the full name.
// Groups keep first-seen order.
func groupByJournal(papers []fetcher.Paper) []journalGroup {
	var groups []journalGroup
	index := make(map[string]int)
	for _, p := range papers {
		key := p.JournalAbbr
		if key == "" {
			key = p.Journal
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, journalGroup{journal: key})
		}
		groups[i].papers = append(groups[i].papers, p)
	}
	return groups
}

func writePaper(sb *strings.Builder, p fetcher.Paper) {
	if p.TitleTranslated != "" && p.TitleTranslated != p.Title {
		fmt.Fprintf(sb, "#### %s\n", p.TitleTranslated)
		fmt.Fprintf(sb, "*%s*  [link](%s)\n", p.Title, p.URL)
	} else {
		fmt.Fprintf(sb, "#### [%s](%s)\n", p.Title, p.URL)
	}

	authors := p.Authors
	suffix := ""
	if len(authors) > maxAuthors {
		authors = authors[:maxAuthors]
		suffix = " et al."
	}
	fmt.Fprintf(sb, "- Authors: %s%s\n", strings.Join(authors, ", "), suffix)

	meta := "- Date: " + p.PublicationDate
	switch p.Source {
	case fetcher.SourcePubMed:
		meta += "  |  PMID: " + p.SourceID
	case fetcher.SourceArxiv:
		meta += "  |  arXiv: " + p.SourceID
		if len(p.Categories) > 0 {
			meta += "  |  " + strings.Join(p.Categories[:min(len(p.Categories), maxArxivCats)], ", ")
		}
	}
	sb.WriteString(meta + "\n")

	abstract := p.AbstractTranslated
	if abstract == "" {
		abstract = preview(p.Abstract)
	}
	if abstract != "" {
		sb.WriteString("\n")
		sb.WriteString(quote(abstract))
	}
	sb.WriteString("\n")
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= abstractPreview {
		return s
	}
	return string(r[:abstractPreview]) + "..."
}

// quote prefixes every line so multi-paragraph text stays in one blockquote.
func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight("> "+l, " ")
	}
	return strings.Join(lines, "\n") + "\n"
}
