package config

const (
	defaultSaveFolder       = "downloads"
	defaultFileNameTemplate = "{title}"
	defaultConcurrency      = 30
	defaultTimeoutSeconds   = 60
	defaultRetries          = 3
	defaultOnDuplicate      = "rename"
	defaultSuccessfulPath   = "audit/successful_downloads.csv"
	defaultFailedPath       = "audit/failed_downloads.csv"
	defaultLogLevel         = "info"
	defaultLogFormat        = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Downloader: Downloader{
			SaveFolder:       defaultSaveFolder,
			FileNameTemplate: defaultFileNameTemplate,
			Concurrency:      defaultConcurrency,
			TimeoutSeconds:   defaultTimeoutSeconds,
			Retries:          defaultRetries,
			OnDuplicate:      defaultOnDuplicate,
		},
		Audit: Audit{
			Successful:     true,
			Failed:         true,
			SuccessfulPath: defaultSuccessfulPath,
			FailedPath:     defaultFailedPath,
			Lock:           true,
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
