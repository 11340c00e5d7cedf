// Package watch turns an inbox directory into a batch queue: list files that
// land in it are handed to a handler one at a time, then filed under
// processed/ or failed/.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"sheetfetch/internal/files"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/services"
)

// Subdirectories of the inbox that receive handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

const defaultDebounce = 2 * time.Second

// Handler processes one list file.
type Handler func(ctx context.Context, path string) error

// Options configures an inbox watch.
type Options struct {
	Dir string
	// Debounce waits for writes to settle before a file is handled.
	Debounce time.Duration
	// InitialScan queues files already present when the watch starts.
	InitialScan bool
	// Extensions lists accepted suffixes, lowercase with the dot.
	Extensions []string
	Files      *files.Manager
}

func (o Options) withDefaults(logger *slog.Logger) Options {
	if o.Debounce <= 0 {
		o.Debounce = defaultDebounce
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".csv", ".json"}
	}
	if o.Files == nil {
		o.Files = files.NewManager(nil, logger)
	}
	return o
}

func (o Options) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, want := range o.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Run watches opts.Dir until ctx ends. Files are handled sequentially in name
// order once no event has touched them for the debounce interval.
func Run(ctx context.Context, opts Options, handle Handler, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "watch")
	opts = opts.withDefaults(logger)
	if strings.TrimSpace(opts.Dir) == "" {
		return services.Wrap(services.ErrConfiguration, "watch", "start", "inbox directory is required", nil)
	}
	if handle == nil {
		return services.Wrap(services.ErrConfiguration, "watch", "start", "handler is required", nil)
	}
	if err := opts.Files.MkdirAll(opts.Dir); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrFilesystem, "watch", "start", "create watcher", err)
	}
	defer w.Close()
	if err := w.Add(opts.Dir); err != nil {
		return services.Wrap(services.ErrFilesystem, "watch", "start", opts.Dir, err)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	if opts.InitialScan {
		entries, err := os.ReadDir(opts.Dir)
		if err != nil {
			return services.Wrap(services.ErrFilesystem, "watch", "scan", opts.Dir, err)
		}
		for _, entry := range entries {
			path := filepath.Join(opts.Dir, entry.Name())
			if !entry.IsDir() && opts.accepts(path) {
				pending[path] = struct{}{}
			}
		}
		if len(pending) > 0 {
			timer.Reset(0)
		}
	}

	logger.Info("watching inbox", logging.String("dir", opts.Dir), logging.Duration("debounce", opts.Debounce))
	for {
		select {
		case <-ctx.Done():
			logger.Info("inbox watch stopped", logging.Int("pending", len(pending)))
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 || !opts.accepts(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(opts.Debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(logger, "inbox watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "an inbox event may have been missed"),
			)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			clear(pending)
			sort.Strings(paths)
			for _, path := range paths {
				if err := process(ctx, opts, path, handle, logger); err != nil {
					return err
				}
			}
		}
	}
}

// process handles one file. Only the end of ctx is returned; handler
// failures are logged and the file is filed under failed/.
func process(ctx context.Context, opts Options, path string, handle Handler, logger *slog.Logger) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}
	logger = logger.With(logging.String("file", filepath.Base(path)))
	logger.Info("inbox file received")

	handleErr := handle(ctx, path)
	if ctx.Err() != nil {
		// Left in place so the next watch picks it up again.
		return nil
	}
	target := ProcessedDir
	if handleErr != nil {
		target = FailedDir
		logging.WarnWithContext(logger, "inbox file failed", "inbox_file_failed",
			logging.Error(handleErr),
			logging.String(logging.FieldImpact, "file moved to "+FailedDir),
		)
	}
	dest := filepath.Join(opts.Dir, target, fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), filepath.Base(path)))
	if err := opts.Files.Move(path, dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		logging.WarnWithContext(logger, "inbox file not filed", "inbox_move_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "file may be handled again"),
		)
		return nil
	}
	logger.Info("inbox file filed", logging.String("dest", dest), logging.Bool("ok", handleErr == nil))
	return nil
}
