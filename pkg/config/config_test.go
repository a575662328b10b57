package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/audiobooks/pkg/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsExpandPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, resolved, exists, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(home, ".config", "audiobooks", "config.toml"), resolved)

	assert.Equal(t, filepath.Join(home, ".local", "share", "audiobooks", "downloads"), cfg.Paths.DownloadsDir)
	assert.Equal(t, filepath.Join(home, ".local", "share", "audiobooks", "library.db"), cfg.Paths.Database)
	assert.Equal(t, filepath.Join(home, "Audiobooks"), cfg.Paths.ExportDir)
	assert.Equal(t, 2, cfg.Downloads.Workers)
	assert.Equal(t, 50*time.Millisecond, cfg.Downloads.ProgressWindow())
	assert.Equal(t, 30*time.Second, cfg.Downloads.CacheRenewInterval())
	assert.Equal(t, time.Duration(0), cfg.Downloads.RequestInterval())
	assert.Equal(t, 1, cfg.Retry.Attempts)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)
	assert.Empty(t, cfg.Sources)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[paths]
downloads_dir = "`+filepath.ToSlash(dir)+`/dl"

[downloads]
workers = 4
request_interval_ms = 250

[retry]
attempts = 3
backoff_ms = 100
max_backoff_ms = 1000

[logging]
level = " DEBUG "
format = "json"

[[sources]]
id = "catalog"
base_url = "https://catalog.example.com/api/"
`)

	cfg, resolved, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)

	assert.Equal(t, filepath.Join(dir, "dl"), cfg.Paths.DownloadsDir)
	assert.Equal(t, 4, cfg.Downloads.Workers)
	assert.Equal(t, 2, cfg.Downloads.SegmentWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.Downloads.RequestInterval())
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Backoff())
	assert.Equal(t, time.Second, cfg.Retry.MaxBackoff())
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "catalog", cfg.Sources[0].Name)
	assert.Equal(t, "https://catalog.example.com/api", cfg.Sources[0].BaseURL)
}

func TestLoadEnvOverridesDownloadsDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Setenv("AUDIOBOOKS_DOWNLOADS_DIR", dir)

	cfg, _, _, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Paths.DownloadsDir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative workers", "[downloads]\nworkers = -1\n"},
		{"bad level", "[logging]\nlevel = \"loud\"\n"},
		{"bad format", "[logging]\nformat = \"xml\"\n"},
		{"backoff inverted", "[retry]\nbackoff_ms = 500\nmax_backoff_ms = 100\n"},
		{"source without id", "[[sources]]\nbase_url = \"https://a.example\"\n"},
		{"relative base url", "[[sources]]\nid = \"a\"\nbase_url = \"catalog\"\n"},
		{"duplicate source", "[[sources]]\nid = \"a\"\nbase_url = \"https://a.example\"\n[[sources]]\nid = \"a\"\nbase_url = \"https://b.example\"\n"},
		{"unknown key", "[downloads]\nthreads = 3\n"},
		{"not toml", "workers = "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, config.CreateSample(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, toml.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "downloads")

	cfg, _, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, config.Default().Downloads.Workers, cfg.Downloads.Workers)
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DownloadsDir = filepath.Join(root, "dl")
	cfg.Paths.CoversDir = filepath.Join(root, "covers")
	cfg.Paths.ExportDir = filepath.Join(root, "exports")
	cfg.Paths.Database = filepath.Join(root, "db", "library.db")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.Paths.DownloadsDir)
	assert.DirExists(t, cfg.Paths.CoversDir)
	assert.DirExists(t, cfg.Paths.ExportDir)
	assert.DirExists(t, filepath.Join(root, "db"))
}
