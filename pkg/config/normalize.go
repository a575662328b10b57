package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownloads()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.normalizeSources()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("AUDIOBOOKS_DOWNLOADS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DownloadsDir = value
	}

	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.downloads_dir", &c.Paths.DownloadsDir, defaultDownloadsDir},
		{"paths.database", &c.Paths.Database, defaultDatabase},
		{"paths.covers_dir", &c.Paths.CoversDir, defaultCoversDir},
		{"paths.export_dir", &c.Paths.ExportDir, defaultExportDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeDownloads() {
	if c.Downloads.Workers == 0 {
		c.Downloads.Workers = defaultWorkers
	}
	if c.Downloads.SegmentWorkers == 0 {
		c.Downloads.SegmentWorkers = defaultSegmentWorkers
	}
	if c.Downloads.CacheRenewSeconds == 0 {
		c.Downloads.CacheRenewSeconds = defaultCacheRenewSeconds
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeLogging() error {
	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}

func (c *Config) normalizeSources() {
	for i := range c.Sources {
		s := &c.Sources[i]
		s.ID = strings.TrimSpace(s.ID)
		s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = s.ID
		}
	}
}
