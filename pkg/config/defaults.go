package config

const (
	defaultConfigPath   = "~/.config/audiobooks/config.toml"
	defaultDownloadsDir = "~/.local/share/audiobooks/downloads"
	defaultDatabase     = "~/.local/share/audiobooks/library.db"
	defaultCoversDir    = "~/.local/share/audiobooks/covers"
	defaultExportDir    = "~/Audiobooks"

	defaultWorkers           = 2
	defaultSegmentWorkers    = 2
	defaultProgressWindowMS  = 50
	defaultCacheRenewSeconds = 30

	defaultRetryAttempts = 1
	defaultBackoffMS     = 2000
	defaultMaxBackoffMS  = 30000

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// Default returns a configuration populated with default values. Paths are
// not yet expanded.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadsDir: defaultDownloadsDir,
			Database:     defaultDatabase,
			CoversDir:    defaultCoversDir,
			ExportDir:    defaultExportDir,
		},
		Downloads: Downloads{
			Workers:           defaultWorkers,
			SegmentWorkers:    defaultSegmentWorkers,
			ProgressWindowMS:  defaultProgressWindowMS,
			CacheRenewSeconds: defaultCacheRenewSeconds,
		},
		Retry: Retry{
			Attempts:     defaultRetryAttempts,
			BackoffMS:    defaultBackoffMS,
			MaxBackoffMS: defaultMaxBackoffMS,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
