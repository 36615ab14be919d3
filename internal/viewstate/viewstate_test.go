package viewstate

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "state.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if f.Theme != defaultTheme || len(f.Documents) != 0 {
		t.Fatalf("Load = %+v, want the default theme and no records", f)
	}
}

func TestLoad_InvalidTOMLFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	if err := os.WriteFile(path, []byte("not valid toml {{{\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if f.Theme != defaultTheme {
		t.Fatalf("Theme = %q, want %q", f.Theme, defaultTheme)
	}
}

func TestLoad_EmptyPathErrors(t *testing.T) {
	if _, err := Load("  "); err == nil {
		t.Fatal("Load returned nil error for an empty path")
	}
}

func TestSave_RoundTripCreatesDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := "~/nested/dir/state.toml"

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := File{Theme: "Slate"}
	f.Put(Record{Path: "/docs/a.pdf", Page: 4, Scale: 1.5, ScrollX: 10, ScrollY: 900, PageList: true, Updated: at})
	if err := Save(path, f); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "nested/dir/state.toml")); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Theme != "Slate" {
		t.Fatalf("Theme = %q, want Slate", loaded.Theme)
	}
	r, ok := loaded.Lookup("/docs/a.pdf")
	if !ok {
		t.Fatal("Lookup found no record")
	}
	if r.Page != 4 || r.Scale != 1.5 || r.ScrollX != 10 || r.ScrollY != 900 || !r.PageList || !r.Updated.Equal(at) {
		t.Fatalf("record = %+v", r)
	}
}

func TestPut_ReplacesAndBounds(t *testing.T) {
	var f File
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range MaxRecords + 6 {
		f.Put(Record{Path: fmt.Sprintf("/d/%d", i), Page: i, Updated: base.Add(time.Duration(i) * time.Minute)})
	}
	if len(f.Documents) != MaxRecords {
		t.Fatalf("records = %d, want %d", len(f.Documents), MaxRecords)
	}
	if _, ok := f.Lookup("/d/0"); ok {
		t.Fatal("oldest record was kept")
	}
	if f.Documents[0].Path != fmt.Sprintf("/d/%d", MaxRecords+5) {
		t.Fatalf("newest record = %q", f.Documents[0].Path)
	}

	f.Put(Record{Path: "/d/10", Page: 99, Updated: base.Add(24 * time.Hour)})
	if len(f.Documents) != MaxRecords {
		t.Fatalf("records after replace = %d, want %d", len(f.Documents), MaxRecords)
	}
	if r, _ := f.Lookup("/d/10"); r.Page != 99 {
		t.Fatalf("replaced record page = %d, want 99", r.Page)
	}
}
