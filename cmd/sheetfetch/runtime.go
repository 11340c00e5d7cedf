package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sheetfetch/internal/batch"
	"sheetfetch/internal/catalog"
	"sheetfetch/internal/catalog/browser"
	"sheetfetch/internal/config"
	"sheetfetch/internal/deps"
	"sheetfetch/internal/files"
	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/locks"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/notifications"
	"sheetfetch/internal/pdf"
	"sheetfetch/internal/preflight"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/restore"
	"sheetfetch/internal/selection"
	"sheetfetch/internal/services"
)

const (
	staleStagingAge = 24 * time.Hour
	progressBucket  = 10
)

// runtime owns everything an acquisition command drives. close releases it
// in reverse order of construction.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobstore.Store
	notifier notifications.Service
	orch     *batch.Orchestrator
	sink     progress.Sink
	closers  []func() error
}

type runtimeOptions struct {
	in  *os.File
	out io.Writer
}

func openRuntime(ctx context.Context, cc *commandContext, opts runtimeOptions) (*runtime, error) {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cc.ensureLogger()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			rt.close()
		}
	}()

	if err := runPreflight(ctx, cfg, logger); err != nil {
		return nil, err
	}

	processLock, err := locks.AcquireProcessLock(cfg.SessionLockPath())
	if err != nil {
		if errors.Is(err, locks.ErrSessionBusy) {
			return nil, fmt.Errorf("%w; wait for the other run to finish", err)
		}
		return nil, err
	}
	rt.closers = append(rt.closers, processLock.Release)

	logging.PruneExpired(logger, cfg.Logging.RetentionDays, time.Now(), logging.DefaultRetentionTargets(cfg.Paths.LogDir)...)

	fm := files.NewManager(locks.New("filesystem"), logger)
	if swept := fm.CleanStale(ctx, cfg.Paths.StagingDir, staleStagingAge); len(swept.Removed) > 0 {
		logger.Info("removed stale staging directories", logging.Int("count", len(swept.Removed)))
	}

	store, err := jobstore.Open(cfg)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	execPath, found := deps.ResolveBrowser(cfg.Catalog.BrowserPath)
	if !found {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "browser", "no Chrome or Chromium executable found; set catalog.browser_path", nil)
	}
	client, err := browser.Open(ctx, browser.Options{
		BaseURL:         cfg.Catalog.BaseURL,
		ExecPath:        execPath,
		Headless:        cfg.Catalog.Headless,
		UserAgent:       cfg.Catalog.UserAgent,
		ElementTimeout:  cfg.OperationTimeout(),
		DownloadTimeout: cfg.DownloadTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	sessionOpts := catalog.SessionOptions{
		OperationTimeout: cfg.OperationTimeout(),
		SearchTimeout:    cfg.SearchTimeout(),
		DownloadTimeout:  cfg.DownloadTimeout(),
	}
	if cfg.Catalog.ScreenshotOnError {
		sessionOpts.ScreenshotDir = filepath.Join(cfg.Paths.LogDir, logging.ScreenshotSubdir)
	}
	session := catalog.NewSession(client, locks.New("session"), fm, sessionOpts, logger)
	rt.closers = append(rt.closers, session.Close)

	restorer := restore.New(restore.Options{
		WatermarkDir: cfg.Models.WatermarkDir,
		UpscaleDir:   cfg.Models.UpscaleDir,
		Workers:      cfg.Models.Workers,
	}, logger)

	rt.notifier = notifications.NewService(cfg)
	rt.sink = progress.NewLogSink(logger, progressBucket)

	in := opts.in
	if in == nil {
		in = os.Stdin
	}
	out := opts.out
	if out == nil {
		out = os.Stdout
	}

	rt.orch, err = batch.New(cfg, batch.Dependencies{
		Catalog:   session,
		Selector:  selection.ForTerminal(in, out),
		Files:     fm,
		Restorer:  restorer,
		Assembler: pdf.NewAssembler(fm, cfg.Paths.StagingDir, logger),
		Store:     store,
		Notifier:  rt.notifier,
	}, logger)
	if err != nil {
		return nil, err
	}
	ready = true
	return rt, nil
}

func (rt *runtime) close() {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && rt.logger != nil {
			rt.logger.Debug("release failed", logging.Error(err))
		}
	}
	rt.closers = nil
}

// notifyFailure reports a run-ending error through ntfy. Canceled runs are
// not errors worth a push.
func (rt *runtime) notifyFailure(ctx context.Context, err error, what string) {
	if err == nil || rt == nil || rt.notifier == nil || errors.Is(err, context.Canceled) {
		return
	}
	if nerr := rt.notifier.NotifyError(context.WithoutCancel(ctx), err, what); nerr != nil {
		rt.logger.Debug("error notification failed", logging.Error(nerr))
	}
}

// runPreflight stops acquisition commands early when a required check fails.
// The catalog reachability check is skipped; the browser session reports reachability
// itself on the first search.
func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg, preflight.Options{SkipNetwork: true}))
	if len(failed) == 0 {
		return nil
	}
	for _, result := range failed {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
	return services.Wrap(services.ErrConfiguration, "cli", "preflight",
		fmt.Sprintf("%s: %s (run `sheetfetch check` for details)", failed[0].Name, failed[0].Detail), nil)
}
