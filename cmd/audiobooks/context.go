package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kerbaras/audiobooks/pkg/config"
	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/download"
	"github.com/kerbaras/audiobooks/pkg/integrations"
	"github.com/kerbaras/audiobooks/pkg/logging"
	"github.com/kerbaras/audiobooks/pkg/services"
	"github.com/kerbaras/audiobooks/pkg/sources"
)

// appContext holds everything a command needs, built from the config file.
type appContext struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	repo       *data.Repository
	registry   *sources.Registry
	provider   *download.Provider
	cache      *download.Cache
	manager    *download.Manager
	ctrl       *services.LibraryController

	started   bool
	logCloser io.Closer
}

func newAppContext(ctx context.Context, configPath string) (*appContext, error) {
	cfg, resolved, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", "path", resolved)

	repo, err := data.NewDuckDBRepository(cfg.Paths.Database)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	registry := sources.NewRegistry()
	for _, s := range cfg.Sources {
		registry.Register(sources.NewCatalog(s.ID, s.Name, s.BaseURL))
	}
	if err := registerStubs(repo, registry); err != nil {
		repo.Close()
		logCloser.Close()
		return nil, err
	}

	provider := download.NewProvider(cfg.Paths.DownloadsDir)
	cache := download.NewCache(provider, download.CacheOptions{
		RenewInterval: cfg.Downloads.CacheRenewInterval(),
		Logger:        logger.With("component", "cache"),
	})
	if err := cache.Rebuild(ctx); err != nil {
		logger.Warn("failed to index downloads", "error", err)
	}

	manager := download.NewManager(registry, provider, cache, download.Options{
		Workers:         cfg.Downloads.Workers,
		SegmentWorkers:  cfg.Downloads.SegmentWorkers,
		ProgressWindow:  cfg.Downloads.ProgressWindow(),
		RequestInterval: cfg.Downloads.RequestInterval(),
		Retry: download.RetryPolicy{
			Attempts:   cfg.Retry.Attempts,
			Backoff:    cfg.Retry.Backoff(),
			MaxBackoff: cfg.Retry.MaxBackoff(),
		},
		Logger: logger.With("component", "downloads"),
	})

	ctrl := services.NewLibraryController(services.ControllerConfig{
		Repo:      repo,
		Sources:   registry,
		Downloads: manager,
		Index:     cache,
		Covers:    integrations.NewCoverStore(cfg.Paths.CoversDir),
		Locator:   provider,
		Exporter:  integrations.NewEPubBuilder(cfg.Paths.ExportDir),
		Logger:    logger.With("component", "library"),
	})

	return &appContext{
		cfg:        cfg,
		configPath: resolved,
		logger:     logger,
		repo:       repo,
		registry:   registry,
		provider:   provider,
		cache:      cache,
		manager:    manager,
		ctrl:       ctrl,
		logCloser:  logCloser,
	}, nil
}

// registerStubs makes sources referenced by the library but missing from the
// config resolvable, so they report as not installed instead of unknown.
func registerStubs(repo *data.Repository, registry *sources.Registry) error {
	entries, err := repo.ListEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, ok := registry.Get(e.Source); !ok && e.Source != "" {
			registry.Register(sources.NewStub(e.Source))
		}
	}
	return nil
}

// startDownloads starts the download workers. Only one process may run them
// per downloads directory.
func (a *appContext) startDownloads(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		if errors.Is(err, download.ErrLocked) {
			return fmt.Errorf("%s is used by another audiobooks process: %w", a.cfg.Paths.DownloadsDir, err)
		}
		return err
	}
	a.started = true
	return nil
}

func (a *appContext) sourceIDs() []string {
	ids := make([]string, 0, len(a.cfg.Sources))
	for _, s := range a.cfg.Sources {
		ids = append(ids, s.ID)
	}
	return ids
}

// findEntry resolves an entry by id or, failing that, by title.
func (a *appContext) findEntry(ident string) (*data.Entry, error) {
	if entry, err := a.ctrl.Entry(ident); err == nil {
		return entry, nil
	} else if !errors.Is(err, data.ErrNotFound) {
		return nil, err
	}

	entries, err := a.repo.ListEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Title, ident) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("entry %q: %w", ident, data.ErrNotFound)
}

func (a *appContext) Close() error {
	var errs []error
	if a.started {
		if err := a.manager.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.repo.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.logCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
