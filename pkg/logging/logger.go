package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/kerbaras/audiobooks/pkg/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // auto, text or json
	Output io.Writer
	// File, when set, replaces Output with an append-only log file.
	File string
}

// New constructs a slog logger. The returned closer releases the log file and
// is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var closer io.Closer = nopCloser{}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	switch format := resolveFormat(opts.Format, out); format {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), closer, nil
}

// NewFromConfig creates a logger from the [logging] section.
func NewFromConfig(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "auto"})
	}
	return New(Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveFormat turns "auto" into text for terminals and json otherwise.
func resolveFormat(format string, out io.Writer) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != "auto" {
		return format
	}
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}
	return "json"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
