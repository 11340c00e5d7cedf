package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"sheetfetch/internal/acquire"
	"sheetfetch/internal/catalog"
	"sheetfetch/internal/files"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/task"
)

const unknownArtist = "Unknown Artist"

// ErrNoResults reports a single-song search without any song result.
var ErrNoResults = errors.New("no songs found")

// SongRequest describes one interactive acquisition.
type SongRequest struct {
	Title string
	Key   string
	// Instruments lists the parts wanted. Empty means every part the catalog
	// offers for the chosen key.
	Instruments []string
	// HornOnly takes the first French horn part and ignores Instruments.
	HornOnly bool
	// Open reveals the output folder when done.
	Open bool
}

// SongResult is what a single-song acquisition saved.
type SongResult struct {
	Candidate sheet.Candidate
	Key       string
	Dir       string
	Scores    []string
	// Skipped lists parts that produced no score.
	Skipped []string
}

// RunSong searches title, lets the selector choose a candidate, negotiates
// the key, and writes one PDF per requested part to
// <download>/<title>/<artist>/<key>/. A part that fails is skipped; the call
// fails only when nothing was saved.
func (o *Orchestrator) RunSong(ctx context.Context, req SongRequest, sink progress.Sink) (*SongResult, error) {
	sink = progress.OrNop(sink)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "song", "validate", "title is required", nil)
	}
	ctx = services.WithSong(ctx, title)
	logger := logging.WithContext(ctx, o.logger)
	ctrl := o.controller()

	candidates, err := task.Run(ctx, "search", func(taskCtx context.Context) ([]sheet.Candidate, error) {
		return ctrl.Search(taskCtx, title, sink)
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "song", "search", title, ErrNoResults)
	}
	candidate, err := task.Run(ctx, "choose", func(taskCtx context.Context) (sheet.Candidate, error) {
		return ctrl.Choose(taskCtx, title, candidates)
	})
	if err != nil {
		return nil, err
	}
	ctx = services.WithCandidate(ctx, candidate.Index)

	keys, err := task.Run(ctx, "select", func(taskCtx context.Context) ([]string, error) {
		return ctrl.Select(taskCtx, candidate, sink)
	})
	if err != nil {
		return nil, err
	}

	wanted := append([]string(nil), req.Instruments...)
	negotiateAs := o.cfg.Batch.DefaultInstrument
	if len(wanted) > 0 {
		negotiateAs = wanted[0]
	}
	res, err := task.Run(ctx, "negotiate", func(taskCtx context.Context) (acquire.Resolution, error) {
		return ctrl.Negotiate(taskCtx, keys, negotiateAs, req.Key, sink)
	})
	if err != nil {
		return nil, err
	}
	if res.Substituted && len(wanted) > 0 {
		wanted[0] = res.Instrument
	}

	parts, err := task.Run(ctx, "parts", func(taskCtx context.Context) ([]string, error) {
		return ctrl.Parts(taskCtx, sink)
	})
	if err != nil {
		return nil, err
	}
	targets, err := o.songTargets(ctx, ctrl, parts, wanted, req.HornOnly)
	if err != nil {
		ctrl.Abandon(acquire.ReasonInstrumentNotResolved)
		return nil, err
	}

	songTitle := firstNonEmpty(candidate.Title, title)
	dir := filepath.Join(o.cfg.Paths.DownloadDir,
		files.Sanitize(songTitle),
		files.Sanitize(firstNonEmpty(candidate.Artist, unknownArtist)),
		files.Sanitize(res.Key),
	)
	staging := files.NewStagingPath(o.cfg.Paths.StagingDir, title)
	defer o.cleanupStaging(ctx, staging)

	result := &SongResult{Candidate: candidate, Key: res.Key, Dir: dir}
	for _, part := range targets {
		path, err := o.acquirePart(ctx, ctrl, part, staging, dir, sink)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if services.Classify(err) != services.SeveritySoft {
				ctrl.Abandon(acquire.ReasonSessionError)
				return nil, err
			}
			logging.WarnWithContext(logger, "part not saved", "part_failed",
				logging.Part(part),
				logging.Error(err),
				logging.String(logging.FieldImpact, "no score for this part"),
			)
			sink.Log(fmt.Sprintf("Skipping %s: %v", part, err))
			result.Skipped = append(result.Skipped, part)
			continue
		}
		result.Scores = append(result.Scores, path)
		if err := o.deps.Notifier.NotifyScoreSaved(ctx, songTitle+" ("+part+")", path); err != nil {
			logger.Debug("score notification failed", logging.Error(err))
		}
	}
	if len(result.Scores) == 0 {
		ctrl.Abandon(acquire.ReasonNoPages)
		return result, services.Wrap(services.ErrNotFound, "song", "download", "no part produced a score", acquire.ErrNoPages)
	}
	if err := ctrl.Finish(); err != nil {
		logger.Debug("state transition rejected", logging.Error(err))
	}

	logger.Info("song saved",
		logging.String("dir", dir),
		logging.Int("scores", len(result.Scores)),
		logging.Int("skipped", len(result.Skipped)),
		logging.String(logging.FieldEventType, "song_saved"),
	)
	if req.Open || o.cfg.Batch.OpenAfterDownload {
		if err := o.deps.Open(ctx, dir); err != nil {
			logger.Info("output folder not opened", logging.String("dir", dir), logging.Error(err))
		}
	}
	return result, nil
}

// songTargets resolves which catalog parts to download.
func (o *Orchestrator) songTargets(ctx context.Context, ctrl *acquire.Controller, parts, wanted []string, hornOnly bool) ([]string, error) {
	if hornOnly {
		part, ok := catalog.HornPart(parts)
		if !ok {
			return nil, services.Wrap(services.ErrNotFound, "song", "resolve instrument", "no French horn part", acquire.ErrInstrumentNotResolved)
		}
		return []string{part}, nil
	}
	if len(wanted) == 0 {
		return parts, nil
	}
	targets := make([]string, 0, len(wanted))
	seen := make(map[string]struct{}, len(wanted))
	for _, instrument := range wanted {
		part, err := task.Run(ctx, "instrument", func(taskCtx context.Context) (string, error) {
			return ctrl.ResolveInstrument(taskCtx, parts, instrument)
		})
		if err != nil {
			return nil, err
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		targets = append(targets, part)
	}
	return targets, nil
}

// acquirePart downloads, restores and assembles one part into dir.
func (o *Orchestrator) acquirePart(ctx context.Context, ctrl *acquire.Controller, part, staging, dir string, sink progress.Sink) (string, error) {
	pages, err := task.Run(ctx, "download", func(taskCtx context.Context) ([]sheet.Page, error) {
		return ctrl.Download(taskCtx, part, staging, sink)
	})
	if err != nil {
		return "", err
	}
	restored, err := task.Run(ctx, "restore", func(taskCtx context.Context) ([]sheet.RestoredPage, error) {
		return o.deps.Restorer.Restore(services.WithStage(taskCtx, "restore"), pages, sink)
	})
	if err != nil {
		return "", err
	}
	if len(restored) == 0 {
		return "", services.Wrap(services.ErrNotFound, "song", "restore", "no page survived restoration", nil)
	}
	if err := o.deps.Files.MkdirAll(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, sheet.ScoreFileName(pages[0].Name))
	if err := task.Do(ctx, "pdf", func(taskCtx context.Context) error {
		return o.deps.Assembler.AssembleFile(services.WithStage(taskCtx, "pdf"), restored, path, sink)
	}); err != nil {
		return "", err
	}
	sink.Log(fmt.Sprintf("Saved %s", path))
	return path, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
