package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateSources()
}

func (c *Config) validateDownloads() error {
	d := c.Downloads
	if d.Workers < 1 {
		return errors.New("downloads.workers must be at least 1")
	}
	if d.SegmentWorkers < 1 {
		return errors.New("downloads.segment_workers must be at least 1")
	}
	if d.ProgressWindowMS < 0 {
		return errors.New("downloads.progress_window_ms must not be negative")
	}
	if d.RequestIntervalMS < 0 {
		return errors.New("downloads.request_interval_ms must not be negative")
	}
	if d.CacheRenewSeconds < 1 {
		return errors.New("downloads.cache_renew_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateRetry() error {
	r := c.Retry
	if r.Attempts < 1 {
		return errors.New("retry.attempts must be at least 1")
	}
	if r.BackoffMS < 0 || r.MaxBackoffMS < 0 {
		return errors.New("retry backoff values must not be negative")
	}
	if r.MaxBackoffMS > 0 && r.MaxBackoffMS < r.BackoffMS {
		return errors.New("retry.max_backoff_ms must not be below retry.backoff_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of auto, text, json", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d].id must be set", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d].id %q is declared twice", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		u, err := url.Parse(s.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("sources[%d].base_url %q must be an absolute URL", i, s.BaseURL)
		}
	}
	return nil
}
