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

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	StagingDir  string `toml:"staging_dir"`
	LogDir      string `toml:"log_dir"`
	InboxDir    string `toml:"inbox_dir"`
}

// Catalog contains settings for the browser session that drives the sheet
// music catalog.
type Catalog struct {
	BaseURL           string `toml:"base_url"`
	BrowserPath       string `toml:"browser_path"`
	Headless          bool   `toml:"headless"`
	UserAgent         string `toml:"user_agent"`
	OperationTimeout  int    `toml:"operation_timeout"`
	SearchTimeout     int    `toml:"search_timeout"`
	DownloadTimeout   int    `toml:"download_timeout"`
	MaxCandidates     int    `toml:"max_candidates"`
	MaxPages          int    `toml:"max_pages"`
	PaginationRetries int    `toml:"pagination_retries"`
	ScreenshotOnError bool   `toml:"screenshot_on_error"`
}

// Models contains checkpoint locations for the restoration networks.
type Models struct {
	WatermarkDir string `toml:"watermark_dir"`
	UpscaleDir   string `toml:"upscale_dir"`
	Workers      int    `toml:"workers"`
}

// Batch contains batch orchestration policy.
type Batch struct {
	// CancelPolicy decides what an operator cancel during negotiation stops:
	// "skip_candidate", "skip_song", or "abort_batch".
	CancelPolicy      string `toml:"cancel_policy"`
	DefaultInstrument string `toml:"default_instrument"`
	OpenAfterDownload bool   `toml:"open_after_download"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BatchCompleted bool   `toml:"batch_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for sheetfetch.
//
// Configuration sections by subsystem:
//   - Paths: download root, staging, logs, and the watched inbox
//   - Catalog: browser session, timeouts, and pagination limits
//   - Models: watermark-removal and upscaling checkpoint directories
//   - Batch: cancel policy and defaults for batch runs
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Models        Models        `toml:"models"`
	Batch         Batch         `toml:"batch"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sheetfetch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded first so environment fallbacks can come from it.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load()

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
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sheetfetch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories every run needs. The inbox is only
// created by the watch command.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// OperationTimeout returns the bound applied to a single catalog operation.
func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.Catalog.OperationTimeout) * time.Second
}

// SearchTimeout returns the bound applied to waiting for search results.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Catalog.SearchTimeout) * time.Second
}

// DownloadTimeout returns the bound applied to a single page image fetch.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Catalog.DownloadTimeout) * time.Second
}

// SessionLockPath returns the advisory lock file guarding the browser session.
func (c *Config) SessionLockPath() string {
	return filepath.Join(c.Paths.LogDir, "session.lock")
}

// JobStorePath returns the SQLite database recording batch history.
func (c *Config) JobStorePath() string {
	return filepath.Join(c.Paths.LogDir, "jobs.db")
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
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
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
