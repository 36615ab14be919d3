// Package viewstate persists the user's theme and the last viewing position
// of recently opened documents.
package viewstate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// MaxRecords bounds the number of remembered documents.
const MaxRecords = 64

const defaultTheme = "Dracula"

// File is the persisted state.
type File struct {
	Theme     string   `toml:"theme"`
	Documents []Record `toml:"documents"`
}

// Record is the viewing position of one document.
type Record struct {
	Path     string    `toml:"path"`
	Page     int       `toml:"page"`
	Scale    float64   `toml:"scale"`
	ScrollX  int       `toml:"scroll_x"`
	ScrollY  int       `toml:"scroll_y"`
	PageList bool      `toml:"page_list"`
	Updated  time.Time `toml:"updated"`
}

// Load reads the state file. A missing, unreadable or corrupt file yields
// an empty state with the default theme.
func Load(path string) (File, error) {
	empty := File{Theme: defaultTheme}
	resolved, err := expandPath(path)
	if err != nil {
		return empty, fmt.Errorf("resolve path: %w", err)
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, nil
		}
		return empty, nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return empty, nil // Graceful degradation
	}
	var f File
	if err := toml.Unmarshal(bytes, &f); err != nil {
		return empty, nil // Graceful degradation
	}
	if strings.TrimSpace(f.Theme) == "" {
		f.Theme = defaultTheme
	}
	f.trim()
	return f, nil
}

// Save writes the state file, creating directories as needed.
func Save(path string, f File) error {
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	f.trim()
	bytes, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Lookup returns the record for the document at path.
func (f File) Lookup(path string) (Record, bool) {
	for _, r := range f.Documents {
		if r.Path == path {
			return r, true
		}
	}
	return Record{}, false
}

// Put stores r, replacing any record for the same path. Records beyond
// MaxRecords are dropped, oldest first.
func (f *File) Put(r Record) {
	if r.Updated.IsZero() {
		r.Updated = time.Now()
	}
	out := f.Documents[:0]
	for _, d := range f.Documents {
		if d.Path != r.Path {
			out = append(out, d)
		}
	}
	f.Documents = append(out, r)
	f.trim()
}

// trim orders records newest first and keeps at most MaxRecords.
func (f *File) trim() {
	sort.SliceStable(f.Documents, func(i, j int) bool {
		return f.Documents[i].Updated.After(f.Documents[j].Updated)
	})
	if len(f.Documents) > MaxRecords {
		f.Documents = f.Documents[:MaxRecords]
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
