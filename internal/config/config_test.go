package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.View.Gap != 4 || cfg.View.MinScale != 0.15 || cfg.View.MaxScale != 5 {
		t.Fatalf("View = %+v, want defaults", cfg.View)
	}
	if cfg.Render.Buffers != 2 || cfg.Render.TileSize != 64 {
		t.Fatalf("Render = %+v, want defaults", cfg.Render)
	}
	if !cfg.Document.FormFilling || !cfg.Document.Watch {
		t.Fatalf("Document = %+v, want form filling and watching on", cfg.Document)
	}
	wantLog, err := expandPath(defaultLogPath)
	if err != nil {
		t.Fatalf("expandPath(defaultLogPath) returned error: %v", err)
	}
	if cfg.Log.Path != wantLog {
		t.Fatalf("Log.Path = %q, want %q", cfg.Log.Path, wantLog)
	}
	if !strings.HasPrefix(cfg.State.Path, home) {
		t.Fatalf("State.Path = %q, want it under HOME %q", cfg.State.Path, home)
	}
}

func TestLoad_ParsesSections(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
[view]
gap = 0
max_scale = 8.0
background = "  #ffffff  "

[render]
buffers = 3
workers = 2

[reflow]
em = 12.0

[document]
form_filling = false
script_timeout_ms = 500
watch_seconds = 5

[log]
path = "~/logs/folio.log"
level = "debug"

[state]
path = "~/state.toml"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"gap", cfg.View.Gap, 0},
		{"max scale", cfg.View.MaxScale, 8.0},
		{"min scale", cfg.View.MinScale, 0.15},
		{"background", cfg.View.Background, "#ffffff"},
		{"buffers", cfg.Render.Buffers, 3},
		{"tile size", cfg.Render.TileSize, 64},
		{"workers", cfg.Workers(), 2},
		{"em", cfg.Reflow.Em, 12.0},
		{"width", cfg.Reflow.Width, 312.0},
		{"form filling", cfg.Document.FormFilling, false},
		{"script timeout", cfg.Document.ScriptTimeout, 500 * time.Millisecond},
		{"watch", cfg.Document.Watch, true},
		{"watch interval", cfg.Document.WatchInterval, 5 * time.Second},
		{"log path", cfg.Log.Path, filepath.Join(home, "logs/folio.log")},
		{"state path", cfg.State.Path, filepath.Join(home, "state.toml")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if level, err := cfg.LogLevel(); err != nil || level != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, %v, want debug", level, err)
	}
}

func TestLoad_EmptyLogPathDisablesLogging(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(writeConfig(t, "[log]\npath = \"\"\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Path != "" {
		t.Fatalf("Log.Path = %q, want empty", cfg.Log.Path)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	_, err := Load(writeConfig(t, `[view`))
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_InvalidValuesFail(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tests := []struct {
		name string
		body string
		want string
	}{
		{"scale range", "[view]\nmin_scale = 6.0\n", "min_scale"},
		{"buffers", "[render]\nbuffers = 1\n", "render.buffers"},
		{"tile size", "[render]\ntile_size = 4\n", "render.tile_size"},
		{"background", "[view]\nbackground = \"blue\"\n", "color"},
		{"log level", "[log]\nlevel = \"loud\"\n", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("Load returned nil error, want validation error")
			}
			if !strings.Contains(err.Error(), "validate config") || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	r, g, b, err := ParseColor("#ff8000")
	if err != nil {
		t.Fatalf("ParseColor returned error: %v", err)
	}
	if r != 1 || g != float64(0x80)/255 || b != 0 {
		t.Fatalf("ParseColor = %v, %v, %v, want 1, 0.5, 0", r, g, b)
	}
	if _, _, _, err := ParseColor("#fff"); err == nil {
		t.Fatal("ParseColor(#fff) returned nil error")
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/a/b")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("ExpandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
