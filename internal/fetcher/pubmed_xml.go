package fetcher

import (
	"encoding/xml"
	"errors"
	"html"
	"regexp"
	"strings"
)

// efetch XML, reduced to the fields a briefing needs.

type pubmedArticle struct {
	XMLName         xml.Name        `xml:"PubmedArticle"`
	MedlineCitation medlineCitation `xml:"MedlineCitation"`
	PubmedData      pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID    string         `xml:"PMID"`
	Article articleElement `xml:"Article"`
}

type articleElement struct {
	Journal      journalElement  `xml:"Journal"`
	ArticleTitle markup          `xml:"ArticleTitle"`
	Abstract     []abstractText  `xml:"Abstract>AbstractText"`
	Authors      []authorElement `xml:"AuthorList>Author"`
	ELocationIDs []eLocationID   `xml:"ELocationID"`
}

type journalElement struct {
	Title           string         `xml:"Title"`
	ISOAbbreviation string         `xml:"ISOAbbreviation"`
	PubDate         pubDateElement `xml:"JournalIssue>PubDate"`
}

type pubDateElement struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

// markup captures element content verbatim so inline tags such as <i> or
// <sup> can be stripped instead of truncating the text at the first tag.
type markup struct {
	Inner string `xml:",innerxml"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

type authorElement struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	CollectiveName string `xml:"CollectiveName"`
}

type eLocationID struct {
	EIdType string `xml:"EIdType,attr"`
	ValidYN string `xml:"ValidYN,attr"`
	Value   string `xml:",chardata"`
}

type pubmedData struct {
	ArticleIDs []articleID `xml:"ArticleIdList>ArticleId"`
}

type articleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

var articleChunkRegex = regexp.MustCompile(`(?s)<PubmedArticle[\s>].*?</PubmedArticle>`)

var errMissingPMID = errors.New("record has no PMID")

// parseArticles decodes each PubmedArticle on its own so that one malformed
// record costs only that record.
func (f *PubMedFetcher) parseArticles(body []byte, category string) []Paper {
	chunks := articleChunkRegex.FindAll(body, -1)
	papers := make([]Paper, 0, len(chunks))
	for i, chunk := range chunks {
		p, err := f.parseArticle(chunk, category)
		if err != nil {
			f.logger.Warn().Err(err).Int("record", i).Msg("skipping malformed PubMed record")
			continue
		}
		papers = append(papers, p)
	}
	return papers
}

func (f *PubMedFetcher) parseArticle(chunk []byte, category string) (Paper, error) {
	var a pubmedArticle
	if err := xml.Unmarshal(chunk, &a); err != nil {
		return Paper{}, err
	}
	mc := a.MedlineCitation
	pmid := strings.TrimSpace(mc.PMID)
	if pmid == "" {
		return Paper{}, errMissingPMID
	}

	art := mc.Article
	doi := articleDOI(a)
	return Paper{
		Source:          SourcePubMed,
		SourceID:        pmid,
		Title:           f.plain(art.ArticleTitle.Inner),
		Abstract:        f.abstract(art.Abstract),
		Authors:         authorNames(art.Authors),
		Journal:         strings.TrimSpace(art.Journal.Title),
		JournalAbbr:     strings.TrimSpace(art.Journal.ISOAbbreviation),
		PublicationDate: pubDate(art.Journal.PubDate),
		DOI:             doi,
		URL:             PaperURL(SourcePubMed, pmid, doi),
		Categories:      []string{category},
	}, nil
}

// plain strips markup, resolves entities and collapses whitespace.
func (f *PubMedFetcher) plain(s string) string {
	text := html.UnescapeString(f.markup.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

func (f *PubMedFetcher) abstract(parts []abstractText) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		text := f.plain(part.Inner)
		if text == "" {
			continue
		}
		if part.Label != "" {
			text = "**" + part.Label + "**: " + text
		}
		out = append(out, text)
	}
	return strings.Join(out, " ")
}

func authorNames(authors []authorElement) []string {
	names := make([]string, 0, len(authors))
	for _, au := range authors {
		switch {
		case au.LastName != "":
			names = append(names, strings.TrimSpace(au.LastName+" "+au.ForeName))
		case au.CollectiveName != "":
			names = append(names, strings.TrimSpace(au.CollectiveName))
		}
	}
	return names
}

func pubDate(d pubDateElement) string {
	date := strings.Join(strings.Fields(d.Year+" "+d.Month+" "+d.Day), " ")
	if date == "" {
		return strings.TrimSpace(d.MedlineDate)
	}
	return date
}

func articleDOI(a pubmedArticle) string {
	for _, id := range a.PubmedData.ArticleIDs {
		if id.IDType == "doi" && strings.TrimSpace(id.Value) != "" {
			return strings.TrimSpace(id.Value)
		}
	}
	for _, loc := range a.MedlineCitation.Article.ELocationIDs {
		if loc.EIdType == "doi" && loc.ValidYN != "N" && strings.TrimSpace(loc.Value) != "" {
			return strings.TrimSpace(loc.Value)
		}
	}
	return ""
}
