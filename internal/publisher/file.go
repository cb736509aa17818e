package publisher

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter stores briefings in the output directory.
type FileWriter struct {
	dir string
}

func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{dir: dir}
}

func (f *FileWriter) Dir() string {
	return f.dir
}

// Write stores content under name and returns the full path. The directory
// is created if missing and the file appears only once fully written.
func (f *FileWriter) Write(name, content string) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("output: failed to create %s: %w", f.dir, err)
	}
	path := filepath.Join(f.dir, name)

	tmp, err := os.CreateTemp(f.dir, ".briefing-*.tmp")
	if err != nil {
		return "", fmt.Errorf("output: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("output: failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("output: failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("output: failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("output: failed to write %s: %w", path, err)
	}
	return path, nil
}
