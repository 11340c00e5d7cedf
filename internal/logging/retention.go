package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ScreenshotSubdir holds catalog failure screenshots under the log directory.
const ScreenshotSubdir = "screenshots"

// RetentionTarget is a directory and file glob whose matches expire.
type RetentionTarget struct {
	Dir     string
	Pattern string
}

// DefaultRetentionTargets lists what piles up under logDir: rotated journals
// and catalog failure screenshots. The active journal never matches.
func DefaultRetentionTargets(logDir string) []RetentionTarget {
	if strings.TrimSpace(logDir) == "" {
		return nil
	}
	return []RetentionTarget{
		{Dir: logDir, Pattern: strings.TrimSuffix(journalName, ".log") + "-*.log"},
		{Dir: filepath.Join(logDir, ScreenshotSubdir), Pattern: "screenshot-*.png"},
	}
}

// PruneExpired deletes regular files matching targets that were last
// modified more than retentionDays before now, and reports how many went.
// Zero days keeps everything.
func PruneExpired(logger *slog.Logger, retentionDays int, now time.Time, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		if strings.TrimSpace(target.Dir) == "" || target.Pattern == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(target.Dir, target.Pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "expired log file not removed", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of log_dir"),
					String(FieldImpact, "old file stays on disk"),
				)
				continue
			}
			removed++
		}
	}
	if removed > 0 && logger != nil {
		logger.Info("expired log files removed",
			Int("count", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
