package config

const (
	defaultLibraryDir        = "~/Music/tunesmith"
	defaultCacheDir          = "~/.cache/tunesmith/media"
	defaultStateDir          = "~/.local/share/tunesmith"
	defaultFetchBinary       = "yt-dlp"
	defaultFFmpegBinary      = "ffmpeg"
	defaultConcurrent        = 8
	defaultThrottleSeconds   = 3
	defaultAudioFormat       = "mp3"
	defaultAudioQuality      = "0"
	defaultSourceURLTemplate = "https://www.youtube.com/playlist?list=%s"
	defaultItemURLTemplate   = "https://www.youtube.com/watch?v=%s"
	defaultMediaExtension    = ".mp3"
	defaultCatalogFile       = "catalog.json"
	defaultJobsFile          = "jobs.db"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultNotifyTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			CacheDir:   defaultCacheDir,
			StateDir:   defaultStateDir,
		},
		Fetch: Fetch{
			Binary:              defaultFetchBinary,
			FFmpegBinary:        defaultFFmpegBinary,
			ConcurrentDownloads: defaultConcurrent,
			ThrottleSeconds:     defaultThrottleSeconds,
			AudioFormat:         defaultAudioFormat,
			AudioQuality:        defaultAudioQuality,
			SourceURLTemplate:   defaultSourceURLTemplate,
			ItemURLTemplate:     defaultItemURLTemplate,
		},
		Library: Library{
			MediaExtension:   defaultMediaExtension,
			CatalogFile:      defaultCatalogFile,
			DeleteStrayFiles: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			OnlyChanges:    true,
		},
	}
}
