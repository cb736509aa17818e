package render

import (
	"gopkg.in/yaml.v3"
)

type frontMatterDoc struct {
	Title      string         `yaml:"title"`
	Date       string         `yaml:"date"`
	WindowFrom string         `yaml:"window_from"`
	WindowTo   string         `yaml:"window_to"`
	Total      int            `yaml:"total"`
	Counts     map[string]int `yaml:"counts"`
	Tags       []string       `yaml:"tags"`
}

// frontMatter renders a YAML header for note-taking tools such as Obsidian.
func frontMatter(b Briefing, sections []Section) string {
	doc := frontMatterDoc{
		Title:      b.Title(),
		Date:       b.GeneratedAt.Format("2006-01-02"),
		WindowFrom: b.Window.From.Format("2006-01-02"),
		WindowTo:   b.Window.To.Format("2006-01-02"),
		Counts:     make(map[string]int, len(sections)),
		Tags:       []string{"literature-briefing"},
	}
	for _, s := range sections {
		doc.Counts[s.Label] = len(s.Papers)
		doc.Total += len(s.Papers)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return ""
	}
	return "---\n" + string(out) + "---\n\n"
}
