package config

const (
	defaultDownloadDir       = "~/SheetMusic"
	defaultLogDir            = "~/.local/share/sheetfetch/logs"
	defaultInboxDir          = "~/.local/share/sheetfetch/inbox"
	defaultStagingSubdir     = ".staging"
	defaultCatalogBaseURL    = "https://www.praisecharts.com"
	defaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultOperationTimeout  = 2
	defaultSearchTimeout     = 10
	defaultDownloadTimeout   = 30
	defaultMaxCandidates     = 5
	defaultMaxPages          = 200
	defaultPaginationRetries = 2
	defaultWatermarkDir      = "models/Watermark_Removal"
	defaultUpscaleDir        = "models/VDSR"
	defaultCancelPolicy      = CancelSkipSong
	defaultInstrument        = "French Horn 1/2"
	defaultRequestTimeout    = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Cancel policies accepted by batch.cancel_policy.
const (
	CancelSkipCandidate = "skip_candidate"
	CancelSkipSong      = "skip_song"
	CancelAbortBatch    = "abort_batch"
)

// Default returns a Config populated with repository defaults. The download
// directory is left empty so SHEETFETCH_DOWNLOAD_DIR can fill it during
// normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			InboxDir: defaultInboxDir,
		},
		Catalog: Catalog{
			BaseURL:           defaultCatalogBaseURL,
			Headless:          true,
			UserAgent:         defaultUserAgent,
			OperationTimeout:  defaultOperationTimeout,
			SearchTimeout:     defaultSearchTimeout,
			DownloadTimeout:   defaultDownloadTimeout,
			MaxCandidates:     defaultMaxCandidates,
			MaxPages:          defaultMaxPages,
			PaginationRetries: defaultPaginationRetries,
			ScreenshotOnError: true,
		},
		Models: Models{
			WatermarkDir: defaultWatermarkDir,
			UpscaleDir:   defaultUpscaleDir,
		},
		Batch: Batch{
			CancelPolicy:      defaultCancelPolicy,
			DefaultInstrument: defaultInstrument,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			BatchCompleted: true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
