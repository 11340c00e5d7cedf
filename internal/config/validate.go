package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		return errors.New("paths.download_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if !strings.HasPrefix(c.Catalog.BaseURL, "http://") && !strings.HasPrefix(c.Catalog.BaseURL, "https://") {
		return fmt.Errorf("catalog.base_url must be an http(s) URL, got %q", c.Catalog.BaseURL)
	}
	if err := ensurePositiveMap(map[string]int{
		"catalog.operation_timeout": c.Catalog.OperationTimeout,
		"catalog.search_timeout":    c.Catalog.SearchTimeout,
		"catalog.download_timeout":  c.Catalog.DownloadTimeout,
		"catalog.max_candidates":    c.Catalog.MaxCandidates,
		"catalog.max_pages":         c.Catalog.MaxPages,
	}); err != nil {
		return err
	}
	if c.Catalog.MaxCandidates > 5 {
		return errors.New("catalog.max_candidates must be at most 5")
	}
	if c.Catalog.PaginationRetries < 0 {
		return errors.New("catalog.pagination_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateBatch() error {
	switch c.Batch.CancelPolicy {
	case CancelSkipCandidate, CancelSkipSong, CancelAbortBatch:
		return nil
	default:
		return fmt.Errorf("batch.cancel_policy must be one of %s, %s, %s; got %q",
			CancelSkipCandidate, CancelSkipSong, CancelAbortBatch, c.Batch.CancelPolicy)
	}
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return errors.New("notifications.ntfy_topic must be a full http(s) URL")
	}
	return nil
}

// ensurePositiveMap reports the first non-positive value in key order so the
// error is stable.
func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
