package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdoutPublisher prints the Markdown document.
type StdoutPublisher struct {
	w io.Writer
}

// NewStdoutPublisher writes to w, or os.Stdout when w is nil.
func NewStdoutPublisher(w io.Writer) *StdoutPublisher {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutPublisher{w: w}
}

func (p *StdoutPublisher) Name() string { return "stdout" }

func (p *StdoutPublisher) Publish(_ context.Context, report *Report) error {
	if _, err := io.WriteString(p.w, report.Markdown); err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	if report.Path != "" {
		fmt.Fprintln(p.w, strings.Repeat("=", 72))
		fmt.Fprintf(p.w, "Saved to %s\n", report.Path)
	}
	return nil
}
