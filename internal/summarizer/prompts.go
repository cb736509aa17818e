package summarizer

import (
	"fmt"
	"strings"

	"github.com/ryosukesatoh/lit-briefing/internal/fetcher"
)

func translationSystem(language string) string {
	return fmt.Sprintf("You are a professional academic translator. Translate the user's text into %s. "+
		"Keep domain terminology accurate and keep gene, protein and drug names in their original form. "+
		"Output only the translation, with no notes or explanations.", language)
}

func highlightsSystem(language string) string {
	return fmt.Sprintf("You are a senior research editor who writes concise literature briefings in %s.", language)
}

func highlightsPrompt(papers []fetcher.Paper, language string) string {
	var sb strings.Builder
	sb.WriteString("Below is this period's list of new papers, one per line as \"number. [journal] title\":\n\n")
	for i, p := range papers {
		journal := p.JournalAbbr
		if journal == "" {
			journal = p.Journal
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, journal, p.Title)
	}
	fmt.Fprintf(&sb, `
Pick the 3-5 most noteworthy papers. Judge them on:
- methodological breakthroughs
- significant findings
- translational or clinical value
- relevance to current hot topics

For each pick write one or two sentences in %s on why it matters.
Answer as a Markdown bullet list, one "-" item per paper, starting each item with the paper's number (for example "- **3.** ...").
Output only the list.`, language)
	return sb.String()
}
