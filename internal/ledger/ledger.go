// Package ledger persists the identifiers already reported in earlier
// briefings together with the end date of the last covered window.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	// FileName is the ledger's name inside the output directory.
	FileName = "last_fetch_state.json"

	// MaxSeenIDs caps the ledger; the oldest ids are dropped first.
	MaxSeenIDs = 5000

	dateLayout    = "2006/01/02"
	altDateLayout = "2006-01-02"
)

// Ledger is an insertion-ordered set of seen ids plus the last fetch date.
// It is not safe for concurrent use.
type Ledger struct {
	lastFetch string
	ids       []string
	index     map[string]struct{}
}

type state struct {
	LastFetch *string  `json:"last_fetch"`
	SeenIDs   []string `json:"seen_ids"`
	SeenPMIDs []string `json:"seen_pmids,omitempty"`
}

func New() *Ledger {
	return &Ledger{index: make(map[string]struct{})}
}

// Path returns the ledger location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the ledger at path. A missing file yields an empty ledger.
// Ids stored under the legacy "seen_pmids" key are merged ahead of
// "seen_ids".
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read %s: %w", path, err)
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("ledger: failed to parse %s: %w", path, err)
	}

	l := New()
	if s.LastFetch != nil {
		l.lastFetch = *s.LastFetch
	}
	l.Merge(s.SeenPMIDs)
	l.Merge(s.SeenIDs)
	return l, nil
}

// Save writes the ledger to path through a temporary file in the same
// directory and a rename, so readers see either the old or the new file.
func (l *Ledger) Save(path string) error {
	s := state{SeenIDs: l.IDs()}
	if l.lastFetch != "" {
		lf := l.lastFetch
		s.LastFetch = &lf
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: failed to encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ledger: failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".last_fetch_state-*.tmp")
	if err != nil {
		return fmt.Errorf("ledger: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ledger: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("ledger: failed to replace %s: %w", path, err)
	}
	return nil
}

// Has reports whether id was seen.
func (l *Ledger) Has(id string) bool {
	_, ok := l.index[id]
	return ok
}

func (l *Ledger) Len() int {
	return len(l.ids)
}

// IDs returns the seen ids, oldest first.
func (l *Ledger) IDs() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

// Merge appends the ids not yet present, in order, then drops the oldest
// entries beyond MaxSeenIDs. It returns the number of ids added.
func (l *Ledger) Merge(ids []string) int {
	added := 0
	for _, id := range ids {
		if id == "" || l.Has(id) {
			continue
		}
		l.ids = append(l.ids, id)
		l.index[id] = struct{}{}
		added++
	}
	if over := len(l.ids) - MaxSeenIDs; over > 0 {
		for _, id := range l.ids[:over] {
			delete(l.index, id)
		}
		l.ids = append([]string(nil), l.ids[over:]...)
	}
	return added
}

// LastFetch returns the raw stored date, "" on a first run.
func (l *Ledger) LastFetch() string {
	return l.lastFetch
}

// LastFetchDate parses the stored date. ok is false when the ledger has no
// date or it cannot be parsed.
func (l *Ledger) LastFetchDate(loc *time.Location) (t time.Time, ok bool) {
	if l.lastFetch == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{dateLayout, altDateLayout} {
		if t, err := time.ParseInLocation(layout, l.lastFetch, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SetLastFetch records day as the end of the covered window.
func (l *Ledger) SetLastFetch(day time.Time) {
	l.lastFetch = day.Format(dateLayout)
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	c := New()
	c.lastFetch = l.lastFetch
	c.Merge(l.ids)
	return c
}
