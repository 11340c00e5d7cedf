package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	if err := c.normalizeModels(); err != nil {
		return err
	}
	c.normalizeBatch()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if c.Paths.DownloadDir == "" {
		if value, ok := os.LookupEnv("SHEETFETCH_DOWNLOAD_DIR"); ok {
			c.Paths.DownloadDir = value
		}
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = filepath.Join(c.Paths.DownloadDir, defaultStagingSubdir)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		c.Paths.InboxDir = defaultInboxDir
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() error {
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	if c.Catalog.BrowserPath == "" {
		if value, ok := os.LookupEnv("SHEETFETCH_BROWSER"); ok {
			c.Catalog.BrowserPath = value
		}
	}
	c.Catalog.BrowserPath = strings.TrimSpace(c.Catalog.BrowserPath)
	if c.Catalog.BrowserPath != "" && strings.ContainsRune(c.Catalog.BrowserPath, filepath.Separator) {
		expanded, err := expandPath(c.Catalog.BrowserPath)
		if err != nil {
			return fmt.Errorf("catalog.browser_path: %w", err)
		}
		c.Catalog.BrowserPath = expanded
	}
	c.Catalog.UserAgent = strings.TrimSpace(c.Catalog.UserAgent)
	if c.Catalog.UserAgent == "" {
		c.Catalog.UserAgent = defaultUserAgent
	}
	return nil
}

func (c *Config) normalizeModels() error {
	var err error
	if strings.TrimSpace(c.Models.WatermarkDir) == "" {
		c.Models.WatermarkDir = defaultWatermarkDir
	}
	if c.Models.WatermarkDir, err = expandPath(c.Models.WatermarkDir); err != nil {
		return fmt.Errorf("models.watermark_dir: %w", err)
	}
	if strings.TrimSpace(c.Models.UpscaleDir) == "" {
		c.Models.UpscaleDir = defaultUpscaleDir
	}
	if c.Models.UpscaleDir, err = expandPath(c.Models.UpscaleDir); err != nil {
		return fmt.Errorf("models.upscale_dir: %w", err)
	}
	if c.Models.Workers < 0 {
		c.Models.Workers = 0
	}
	return nil
}

func (c *Config) normalizeBatch() {
	policy := strings.ToLower(strings.TrimSpace(c.Batch.CancelPolicy))
	policy = strings.ReplaceAll(policy, "-", "_")
	if policy == "" {
		policy = defaultCancelPolicy
	}
	c.Batch.CancelPolicy = policy
	c.Batch.DefaultInstrument = strings.TrimSpace(c.Batch.DefaultInstrument)
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SHEETFETCH_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
