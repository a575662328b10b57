package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains storage locations.
type Paths struct {
	DownloadsDir string `toml:"downloads_dir"`
	Database     string `toml:"database"`
	CoversDir    string `toml:"covers_dir"`
	ExportDir    string `toml:"export_dir"`
}

// Downloads contains download manager tuning.
type Downloads struct {
	Workers           int `toml:"workers"`
	SegmentWorkers    int `toml:"segment_workers"`
	ProgressWindowMS  int `toml:"progress_window_ms"`
	RequestIntervalMS int `toml:"request_interval_ms"`
	CacheRenewSeconds int `toml:"cache_renew_seconds"`
}

// Retry controls automatic retries of failed chapter downloads. One attempt
// means failures are final until the chapter is queued again.
type Retry struct {
	Attempts     int `toml:"attempts"`
	BackoffMS    int `toml:"backoff_ms"`
	MaxBackoffMS int `toml:"max_backoff_ms"`
}

// Logging contains configuration for log output. An empty File logs to
// stderr.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Source registers a JSON catalog endpoint.
type Source struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
}

type Config struct {
	Paths     Paths     `toml:"paths"`
	Downloads Downloads `toml:"downloads"`
	Retry     Retry     `toml:"retry"`
	Logging   Logging   `toml:"logging"`
	Sources   []Source  `toml:"sources"`
}

// DefaultConfigPath returns the absolute path of the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: defaults are returned and exists is false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the directories the application writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DownloadsDir, c.Paths.CoversDir, c.Paths.ExportDir, filepath.Dir(c.Paths.Database)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (d Downloads) ProgressWindow() time.Duration {
	return time.Duration(d.ProgressWindowMS) * time.Millisecond
}

func (d Downloads) RequestInterval() time.Duration {
	return time.Duration(d.RequestIntervalMS) * time.Millisecond
}

func (d Downloads) CacheRenewInterval() time.Duration {
	return time.Duration(d.CacheRenewSeconds) * time.Second
}

func (r Retry) Backoff() time.Duration {
	return time.Duration(r.BackoffMS) * time.Millisecond
}

func (r Retry) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
