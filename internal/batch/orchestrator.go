package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"sheetfetch/internal/acquire"
	"sheetfetch/internal/catalog"
	"sheetfetch/internal/config"
	"sheetfetch/internal/files"
	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/notifications"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/selection"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/task"
)

// RootPrefix starts the name of every batch output folder.
const RootPrefix = "Batch_"

const rootLayout = "20060102_150405"

// errAbort stops the remaining entries of a batch.
var errAbort = errors.New("batch aborted")

// Restorer turns downloaded pages into restored page images.
type Restorer interface {
	Restore(ctx context.Context, pages []sheet.Page, sink progress.Sink) ([]sheet.RestoredPage, error)
}

// Assembler writes restored pages to one PDF.
type Assembler interface {
	AssembleFile(ctx context.Context, pages []sheet.RestoredPage, path string, sink progress.Sink) error
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	// Catalog is normally a catalog.Session.
	Catalog   catalog.Client
	Selector  selection.Selector
	Files     *files.Manager
	Restorer  Restorer
	Assembler Assembler
	// Store records batch history when set.
	Store    *jobstore.Store
	Notifier notifications.Service
	// Open reveals a folder after a single-song download. Nil uses the
	// platform file manager.
	Open func(ctx context.Context, dir string) error
}

// Request describes one batch run.
type Request struct {
	Name string
	// Source is the list file the entries came from, if any.
	Source  string
	Entries []sheet.Entry
}

// Orchestrator runs batches and single-song acquisitions. It is not safe for
// concurrent use.
type Orchestrator struct {
	cfg    *config.Config
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
}

// New validates deps and fills the optional ones.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "init", "config is required", nil)
	}
	switch {
	case deps.Catalog == nil:
		return nil, services.Wrap(services.ErrConfiguration, "batch", "init", "catalog client is required", nil)
	case deps.Restorer == nil:
		return nil, services.Wrap(services.ErrConfiguration, "batch", "init", "restorer is required", nil)
	case deps.Assembler == nil:
		return nil, services.Wrap(services.ErrConfiguration, "batch", "init", "assembler is required", nil)
	}
	if deps.Selector == nil {
		deps.Selector = selection.First{}
	}
	if deps.Files == nil {
		deps.Files = files.NewManager(nil, logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	if deps.Open == nil {
		deps.Open = openFolder
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "batch"),
		now:    time.Now,
	}, nil
}

func (o *Orchestrator) controller() *acquire.Controller {
	return acquire.NewController(o.deps.Catalog, o.deps.Selector, o.deps.Files, acquire.Options{
		MaxPages:          o.cfg.Catalog.MaxPages,
		PaginationRetries: o.cfg.Catalog.PaginationRetries,
	}, o.logger)
}

// Run processes req.Entries strictly in order. One entry's failure never
// stops the batch; only an abort_batch cancel, a batch-severity error or the
// end of ctx does. The batch folder is created by the first score written
// into it and removed again at the end when it stayed empty. The summary is
// returned in every case once the batch is recorded.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink progress.Sink) (*Summary, error) {
	sink = progress.OrNop(sink)
	started := o.now()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = RootPrefix + started.Format(rootLayout)
	}
	root := filepath.Join(o.cfg.Paths.DownloadDir, RootPrefix+started.Format(rootLayout))

	summary := &Summary{Name: name, RootDir: root, Started: started}
	if o.deps.Store != nil {
		record, err := o.deps.Store.CreateBatch(context.WithoutCancel(ctx), name, req.Source, root, req.Entries)
		if err != nil {
			return nil, err
		}
		summary.BatchID = record.ID
	}

	logger := o.logger.With(logging.String("batch", name))
	logger.Info("batch started",
		logging.String("root", root),
		logging.Int("entries", len(req.Entries)),
		logging.String("cancel_policy", o.cfg.Batch.CancelPolicy),
	)
	if err := o.deps.Notifier.NotifyBatchStarted(ctx, name, len(req.Entries)); err != nil {
		logger.Debug("batch start notification failed", logging.Error(err))
	}

	var runErr error
	for i, entry := range req.Entries {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		sink.Status(fmt.Sprintf("[%d/%d] %s", i+1, len(req.Entries), entry.Title))
		songCtx := services.WithSong(ctx, entry.Title)
		result, err := task.Run(songCtx, "song", func(taskCtx context.Context) (Result, error) {
			return o.runEntry(taskCtx, root, entry, sink)
		})
		result.Position = i
		result.Entry = entry
		summary.Results = append(summary.Results, result)
		o.record(songCtx, summary.BatchID, result)
		if err != nil {
			runErr = err
			break
		}
	}

	if len(summary.Results) < len(req.Entries) {
		summary.Aborted = true
		for i := len(summary.Results); i < len(req.Entries); i++ {
			result := Result{
				Position: i,
				Entry:    req.Entries[i],
				Status:   jobstore.StatusCanceled,
				Detail:   "batch stopped before this entry",
			}
			summary.Results = append(summary.Results, result)
			o.record(ctx, summary.BatchID, result)
		}
	}
	summary.Duration = o.now().Sub(started)
	o.finish(ctx, summary, logger)

	if runErr != nil && !errors.Is(runErr, errAbort) {
		return summary, runErr
	}
	return summary, nil
}

func (o *Orchestrator) finish(ctx context.Context, summary *Summary, logger *slog.Logger) {
	// Bookkeeping still runs after ctx ended.
	ctx = context.WithoutCancel(ctx)
	status := jobstore.BatchCompleted
	if summary.Aborted {
		status = jobstore.BatchAborted
	}
	if o.deps.Store != nil && summary.BatchID != "" {
		if err := o.deps.Store.FinishBatch(ctx, summary.BatchID, status); err != nil {
			logging.WarnWithContext(logger, "batch status not saved", "jobstore_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "history shows the batch as running"),
			)
		}
	}

	attrs := []logging.Attr{
		logging.String("status", status),
		logging.Int("entries", len(summary.Results)),
		logging.Int("completed", summary.Completed()),
		logging.Duration("elapsed", summary.Duration),
	}
	counts := summary.Counts()
	for _, s := range jobstore.AllStatuses() {
		if n := counts[s]; n > 0 && s != jobstore.StatusCompleted {
			attrs = append(attrs, logging.Int(string(s), n))
		}
	}
	o.removeIfEmpty(ctx, summary.RootDir)
	logger.Info("batch finished", logging.Args(attrs...)...)
	for _, failure := range summary.Failures() {
		logger.Info("entry without score",
			logging.Int("position", failure.Position+1),
			logging.String("title", failure.Entry.Title),
			logging.String("status", string(failure.Status)),
			logging.String("detail", failure.Detail),
		)
	}

	if err := o.deps.Notifier.NotifyBatchCompleted(ctx, summary.notification()); err != nil {
		logger.Debug("batch complete notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, batchID string, result Result) {
	if o.deps.Store == nil || batchID == "" {
		return
	}
	if err := o.deps.Store.RecordOutcome(context.WithoutCancel(ctx), batchID, result.Position, result.outcome()); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "entry outcome not saved", "jobstore_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history misses this entry"),
		)
	}
}

// score is one assembled candidate PDF.
type score struct {
	candidate sheet.Candidate
	path      string
}

func (s score) label() string {
	return fmt.Sprintf("%s (%s)", s.candidate.Label(), filepath.Base(s.path))
}

// action is what the orchestrator does after a candidate fails.
type action int

const (
	nextCandidate action = iota
	stopSong
	abortBatch
)

// decide maps a failure onto the next action and the entry status used when
// it ends the song.
func (o *Orchestrator) decide(err error) (action, jobstore.Status) {
	if errors.Is(err, services.ErrCanceled) {
		switch o.cfg.Batch.CancelPolicy {
		case config.CancelSkipCandidate:
			return nextCandidate, jobstore.StatusCanceled
		case config.CancelAbortBatch:
			return abortBatch, jobstore.StatusCanceled
		default:
			return stopSong, jobstore.StatusCanceled
		}
	}
	switch services.Classify(err) {
	case services.SeveritySong:
		return stopSong, jobstore.StatusAbandoned
	case services.SeverityBatch:
		if errors.Is(err, context.Canceled) {
			return abortBatch, jobstore.StatusCanceled
		}
		return abortBatch, jobstore.StatusFailed
	default:
		return nextCandidate, jobstore.StatusFailed
	}
}

// runEntry acquires one batch entry. A non-nil error stops the batch; the
// result is valid either way.
func (o *Orchestrator) runEntry(ctx context.Context, root string, entry sheet.Entry, sink progress.Sink) (Result, error) {
	logger := logging.WithContext(ctx, o.logger)
	ctrl := o.controller()

	staging := files.NewStagingPath(o.cfg.Paths.StagingDir, entry.Title)
	defer o.cleanupStaging(ctx, staging)

	songDir := filepath.Join(root, files.Sanitize(entry.Title))
	var scores []score
	discard := func() {
		for _, s := range scores {
			if err := o.deps.Files.Remove(s.path); err != nil {
				logger.Warn("candidate score not removed", logging.Path(s.path), logging.Error(err))
			}
		}
		scores = nil
		o.removeIfEmpty(ctx, songDir)
	}

	candidates, err := task.Run(ctx, "search", func(taskCtx context.Context) ([]sheet.Candidate, error) {
		return ctrl.Search(taskCtx, entry.Title, sink)
	})
	if err != nil {
		act, status := o.decide(err)
		return Result{Status: status, Detail: err.Error()}, abortErr(act, err)
	}
	if len(candidates) == 0 {
		sink.Log(fmt.Sprintf("No results for %s; moving on.", entry.Title))
		return Result{Status: jobstore.StatusNoResults, Detail: "search returned no songs"}, nil
	}

	var lastErr error
	for idx := range candidates {
		candidate := candidates[idx]
		if idx > 0 {
			// Selecting a song leaves the result list, so search again.
			fresh, err := task.Run(ctx, "search", func(taskCtx context.Context) ([]sheet.Candidate, error) {
				return ctrl.Search(taskCtx, entry.Title, sink)
			})
			if err == nil && idx >= len(fresh) {
				break
			}
			if err != nil {
				if act, status := o.decide(err); act != nextCandidate {
					discard()
					return Result{Status: status, Detail: err.Error()}, abortErr(act, err)
				}
				lastErr = err
				continue
			}
			candidate = fresh[idx]
		}

		s, err := o.tryCandidate(ctx, ctrl, candidate, entry, staging, songDir, idx+1, sink)
		if err == nil {
			scores = append(scores, s)
			continue
		}
		lastErr = err
		act, status := o.decide(err)
		if act == nextCandidate {
			logging.WarnWithContext(logging.WithContext(services.WithCandidate(ctx, candidate.Index), o.logger),
				"candidate failed; trying next", "candidate_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "candidate skipped"),
			)
			continue
		}
		discard()
		if status == jobstore.StatusAbandoned {
			logging.ErrorWithContext(logger, "song abandoned", "song_abandoned",
				logging.Error(err),
				logging.String(logging.FieldImpact, "no score for this entry"),
			)
		}
		return Result{Status: status, Detail: err.Error(), Candidate: candidate.Label()}, abortErr(act, err)
	}

	if len(scores) == 0 {
		detail := "no candidate produced a score"
		if lastErr != nil {
			detail = lastErr.Error()
		}
		o.removeIfEmpty(ctx, songDir)
		return Result{Status: jobstore.StatusNoValidOutput, Detail: detail}, nil
	}

	chosen, err := o.chooseScore(ctx, entry.Title, scores)
	if err != nil {
		discard()
		if errors.Is(err, selection.ErrCanceled) {
			sink.Log(fmt.Sprintf("No score kept for %s.", entry.Title))
			return Result{Status: jobstore.StatusNoValidOutput, Detail: "no score chosen"}, nil
		}
		act, status := o.decide(err)
		if act == nextCandidate {
			act = stopSong
		}
		return Result{Status: status, Detail: err.Error()}, abortErr(act, err)
	}
	kept := scores[chosen]
	for i, s := range scores {
		if i == chosen {
			continue
		}
		if err := o.deps.Files.Remove(s.path); err != nil {
			logger.Warn("unchosen score not removed", logging.Path(s.path), logging.Error(err))
		}
	}
	sink.Log(fmt.Sprintf("Saved %s", kept.path))
	logger.Info("score kept",
		logging.String("candidate", kept.candidate.Label()),
		logging.Path(kept.path),
		logging.Int("candidates_assembled", len(scores)),
		logging.String(logging.FieldEventType, "score_saved"),
	)
	return Result{
		Status:     jobstore.StatusCompleted,
		Candidate:  kept.candidate.Label(),
		OutputPath: kept.path,
	}, nil
}

func abortErr(act action, err error) error {
	if act != abortBatch {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", errAbort, err)
}

// tryCandidate takes one candidate from selection through PDF assembly.
func (o *Orchestrator) tryCandidate(ctx context.Context, ctrl *acquire.Controller, candidate sheet.Candidate, entry sheet.Entry, staging, songDir string, idx int, sink progress.Sink) (score, error) {
	ctx = services.WithCandidate(ctx, candidate.Index)

	keys, err := task.Run(ctx, "select", func(taskCtx context.Context) ([]string, error) {
		return ctrl.Select(taskCtx, candidate, sink)
	})
	if err != nil {
		return score{}, err
	}
	res, err := task.Run(ctx, "negotiate", func(taskCtx context.Context) (acquire.Resolution, error) {
		return ctrl.Negotiate(taskCtx, keys, entry.Instrument, entry.Key, sink)
	})
	if err != nil {
		return score{}, err
	}
	parts, err := task.Run(ctx, "parts", func(taskCtx context.Context) ([]string, error) {
		return ctrl.Parts(taskCtx, sink)
	})
	if err != nil {
		return score{}, err
	}
	part, err := task.Run(ctx, "instrument", func(taskCtx context.Context) (string, error) {
		return ctrl.ResolveInstrument(taskCtx, parts, res.Instrument)
	})
	if err != nil {
		return score{}, err
	}

	dir := filepath.Join(staging, fmt.Sprintf("candidate-%d", idx))
	pages, err := task.Run(ctx, "download", func(taskCtx context.Context) ([]sheet.Page, error) {
		return ctrl.Download(taskCtx, part, dir, sink)
	})
	if err != nil {
		reason := acquire.ReasonSessionError
		if errors.Is(err, acquire.ErrNoPages) {
			reason = acquire.ReasonNoPages
		}
		ctrl.Abandon(reason)
		return score{}, err
	}
	if err := ctrl.Finish(); err != nil {
		return score{}, err
	}

	restored, err := task.Run(ctx, "restore", func(taskCtx context.Context) ([]sheet.RestoredPage, error) {
		return o.deps.Restorer.Restore(services.WithStage(taskCtx, "restore"), pages, sink)
	})
	if err != nil {
		return score{}, err
	}
	if len(restored) == 0 {
		return score{}, services.Wrap(services.ErrNotFound, "batch", "restore", "no page survived restoration", nil)
	}

	path := filepath.Join(songDir, fmt.Sprintf("%d_%s", idx, sheet.ScoreFileName(pages[0].Name)))
	if err := o.deps.Files.MkdirAll(songDir); err != nil {
		return score{}, err
	}
	if err := task.Do(ctx, "pdf", func(taskCtx context.Context) error {
		return o.deps.Assembler.AssembleFile(services.WithStage(taskCtx, "pdf"), restored, path, sink)
	}); err != nil {
		return score{}, err
	}
	sink.Log(fmt.Sprintf("Candidate %d assembled: %s", idx, filepath.Base(path)))
	return score{candidate: candidate, path: path}, nil
}

func (o *Orchestrator) chooseScore(ctx context.Context, title string, scores []score) (int, error) {
	options := make([]string, len(scores))
	for i, s := range scores {
		options[i] = s.label()
	}
	return task.Run(ctx, "choose", func(taskCtx context.Context) (int, error) {
		return o.deps.Selector.Select(taskCtx, selection.Request{
			Kind:    selection.KindScore,
			Title:   "Select PDF",
			Message: fmt.Sprintf("Choose the score to keep for %s", title),
			Options: options,
		})
	})
}

// removeIfEmpty drops an output folder nothing was written into.
func (o *Orchestrator) removeIfEmpty(ctx context.Context, dir string) {
	if err := o.deps.Files.RemoveDirIfEmpty(dir); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "empty output directory not removed", "output_cleanup_failed",
			logging.Path(dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "an empty folder stays in the download directory"),
		)
	}
}

func (o *Orchestrator) cleanupStaging(ctx context.Context, dir string) {
	if err := o.deps.Files.RemoveAll(dir); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "staging directory not removed", "staging_cleanup_failed",
			logging.Path(dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale staging files remain until the next sweep"),
		)
	}
}
