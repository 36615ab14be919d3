package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is folio's configuration.
type Config struct {
	View     View
	Render   Render
	Reflow   Reflow
	Document Document
	Log      Log
	State    State
}

// View holds the layout constants.
type View struct {
	Gap            int
	MinScale       float64
	MaxScale       float64
	PixelsPerPoint float64
	Background     string
}

// Render sizes the render pipeline.
type Render struct {
	Buffers  int
	TileSize int
	// Workers is the rasterization worker count; zero means one per CPU.
	Workers int
}

// Reflow is the layout box for reflowable documents, in points.
type Reflow struct {
	Width  float64
	Height float64
	Em     float64
}

// Document holds per-document behavior.
type Document struct {
	FormFilling   bool
	ScriptTimeout time.Duration
	Watch         bool
	WatchInterval time.Duration
}

// Log configures folio's own log file.
type Log struct {
	Path  string
	Level string
}

// State locates the persisted viewing state.
type State struct {
	Path string
}

const (
	defaultConfigPath = "~/.config/folio/config.toml"
	defaultLogPath    = "~/.local/state/folio/folio.log"
	defaultStatePath  = "~/.local/state/folio/state.toml"
)

// Default returns the built-in configuration with paths expanded.
func Default() Config {
	return Config{
		View:     View{Gap: 4, MinScale: 0.15, MaxScale: 5, PixelsPerPoint: 0.25, Background: "#1e1e1e"},
		Render:   Render{Buffers: 2, TileSize: 64},
		Reflow:   Reflow{Width: 312, Height: 504, Em: 10},
		Document: Document{FormFilling: true, ScriptTimeout: 2 * time.Second, Watch: true, WatchInterval: 2 * time.Second},
		Log:      Log{Path: mustExpand(defaultLogPath), Level: "info"},
		State:    State{Path: mustExpand(defaultStatePath)},
	}
}

type rawConfig struct {
	View struct {
		Gap            *int    `toml:"gap"`
		MinScale       float64 `toml:"min_scale"`
		MaxScale       float64 `toml:"max_scale"`
		PixelsPerPoint float64 `toml:"pixels_per_point"`
		Background     string  `toml:"background"`
	} `toml:"view"`
	Render struct {
		Buffers  int `toml:"buffers"`
		TileSize int `toml:"tile_size"`
		Workers  int `toml:"workers"`
	} `toml:"render"`
	Reflow struct {
		Width  float64 `toml:"width"`
		Height float64 `toml:"height"`
		Em     float64 `toml:"em"`
	} `toml:"reflow"`
	Document struct {
		FormFilling     *bool `toml:"form_filling"`
		ScriptTimeoutMS int   `toml:"script_timeout_ms"`
		Watch           *bool `toml:"watch"`
		WatchSeconds    int   `toml:"watch_seconds"`
	} `toml:"document"`
	Log struct {
		Path  *string `toml:"path"`
		Level string  `toml:"level"`
	} `toml:"log"`
	State struct {
		Path string `toml:"path"`
	} `toml:"state"`
}

// Load reads the config at path (the default location when empty). A
// missing file yields the defaults; empty fields keep their defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.merge(raw)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(raw rawConfig) {
	if raw.View.Gap != nil {
		c.View.Gap = *raw.View.Gap
	}
	setFloat(&c.View.MinScale, raw.View.MinScale)
	setFloat(&c.View.MaxScale, raw.View.MaxScale)
	setFloat(&c.View.PixelsPerPoint, raw.View.PixelsPerPoint)
	if s := strings.TrimSpace(raw.View.Background); s != "" {
		c.View.Background = s
	}

	setInt(&c.Render.Buffers, raw.Render.Buffers)
	setInt(&c.Render.TileSize, raw.Render.TileSize)
	setInt(&c.Render.Workers, raw.Render.Workers)

	setFloat(&c.Reflow.Width, raw.Reflow.Width)
	setFloat(&c.Reflow.Height, raw.Reflow.Height)
	setFloat(&c.Reflow.Em, raw.Reflow.Em)

	if raw.Document.FormFilling != nil {
		c.Document.FormFilling = *raw.Document.FormFilling
	}
	if raw.Document.ScriptTimeoutMS > 0 {
		c.Document.ScriptTimeout = time.Duration(raw.Document.ScriptTimeoutMS) * time.Millisecond
	}
	if raw.Document.Watch != nil {
		c.Document.Watch = *raw.Document.Watch
	}
	if raw.Document.WatchSeconds > 0 {
		c.Document.WatchInterval = time.Duration(raw.Document.WatchSeconds) * time.Second
	}

	// An explicitly empty log path disables logging.
	if raw.Log.Path != nil {
		c.Log.Path = strings.TrimSpace(*raw.Log.Path)
		if c.Log.Path != "" {
			c.Log.Path = mustExpand(c.Log.Path)
		}
	}
	if s := strings.TrimSpace(raw.Log.Level); s != "" {
		c.Log.Level = s
	}
	if s := strings.TrimSpace(raw.State.Path); s != "" {
		c.State.Path = mustExpand(s)
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// Validate reports values no component can run with.
func (c Config) Validate() error {
	var problems []string
	if c.View.Gap < 0 {
		problems = append(problems, "view.gap must not be negative")
	}
	if c.View.MinScale <= 0 || c.View.MinScale > c.View.MaxScale {
		problems = append(problems, "view.min_scale must be positive and at most view.max_scale")
	}
	if c.View.PixelsPerPoint <= 0 {
		problems = append(problems, "view.pixels_per_point must be positive")
	}
	if _, _, _, err := ParseColor(c.View.Background); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Render.Buffers < 2 {
		problems = append(problems, "render.buffers must be at least 2")
	}
	if c.Render.TileSize < 8 {
		problems = append(problems, "render.tile_size must be at least 8")
	}
	if c.Render.Workers < 0 {
		problems = append(problems, "render.workers must not be negative")
	}
	if c.Reflow.Width <= 0 || c.Reflow.Height <= 0 || c.Reflow.Em <= 0 {
		problems = append(problems, "reflow width, height and em must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Workers resolves the rasterization worker count.
func (c Config) Workers() int {
	if c.Render.Workers > 0 {
		return c.Render.Workers
	}
	return runtime.NumCPU()
}

// LogLevel parses the configured log level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// ParseColor parses a #rrggbb color into components in [0, 1].
func ParseColor(s string) (r, g, b float64, err error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("color %q: %w", s, err)
	}
	return float64(v>>16&0xff) / 255, float64(v>>8&0xff) / 255, float64(v&0xff) / 255, nil
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
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
