package acquire

import (
	"context"
	"fmt"
	"path/filepath"

	"sheetfetch/internal/files"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
)

// Download opens part and saves its preview pages under
// <stagingDir>/<part>/ in catalog order. Pagination stops when there is no
// next page, when the page number wraps back to 001 after a later page, or at
// MaxPages. URLs already fetched for the current song are not fetched again.
// A page that fails to download is logged and skipped. Failures of one part
// leave the machine in Downloading so further parts can be tried.
func (c *Controller) Download(ctx context.Context, part, stagingDir string, sink progress.Sink) ([]sheet.Page, error) {
	sink = progress.OrNop(sink)
	ctx = services.WithStage(ctx, "download")
	logger := c.log(ctx)

	if err := c.machine.Transition(StateDownloading); err != nil {
		return nil, err
	}
	if err := c.client.SelectInstrument(ctx, part); err != nil {
		sink.Log(fmt.Sprintf("Could not find instrument: %s in the dropdown list.", part))
		return nil, err
	}

	dir := filepath.Join(stagingDir, files.Sanitize(part))
	sink.Status(fmt.Sprintf("Downloading %s", part))
	sink.Progress(0)

	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	var (
		pages    []sheet.Page
		previous string
		stale    int
		maxSteps = 2*c.opts.MaxPages + 1
	)
	for step := 0; step < maxSteps && len(pages) < c.opts.MaxPages; step++ {
		url, err := c.client.CurrentPageImageURL(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logging.WarnWithContext(logger, "page image not readable", "page_read_failed",
				logging.String(logging.FieldImpact, "remaining pages of this part skipped"),
				logging.Error(err),
			)
			break
		}
		if url == "" {
			break
		}
		name := sheet.URLBase(url)
		number, ok := sheet.PageNumber(name)
		if !ok {
			logger.Debug("page url without page number", logging.PageURL(url))
			break
		}
		// Only a return to 001 after a later page is a wrap; a repeated 001
		// right after the first page is a preview that has not refreshed.
		if previous != "" && previous != sheet.FirstPageNumber && number == sheet.FirstPageNumber {
			break
		}

		if _, dup := c.seen[url]; dup {
			stale++
			if stale > c.opts.PaginationRetries+1 {
				logger.Debug("page preview not advancing", logging.PageURL(url))
				break
			}
		} else {
			stale = 0
			c.seen[url] = struct{}{}
			if page, ok := c.fetchPage(ctx, part, dir, url, name, len(pages), sink); ok {
				pages = append(pages, page)
			} else if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			previous = number
		}

		advanced, err := c.nextPage(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logging.WarnWithContext(logger, "pagination stopped", "pagination_failed",
				logging.String(logging.FieldImpact, "remaining pages of this part skipped"),
				logging.Error(err),
			)
			break
		}
		if !advanced {
			break
		}
	}
	if len(pages) >= c.opts.MaxPages {
		logging.WarnWithContext(logger, "page cap reached", "page_cap_reached",
			logging.Int("max_pages", c.opts.MaxPages),
		)
	}

	sink.Progress(100)
	if len(pages) == 0 {
		sink.Log(fmt.Sprintf("No pages downloaded for %s", part))
		return nil, services.Wrap(services.ErrNotFound, "acquire", "download", part, ErrNoPages)
	}
	logger.Info("part downloaded",
		logging.Part(part),
		logging.Int("pages", len(pages)),
	)
	return pages, nil
}

func (c *Controller) fetchPage(ctx context.Context, part, dir, url, name string, seq int, sink progress.Sink) (sheet.Page, bool) {
	sink.Status(fmt.Sprintf("Downloading %s", name))
	data, err := c.client.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(c.log(ctx), "page download failed", "page_fetch_failed",
				logging.PageURL(url),
				logging.String(logging.FieldImpact, "page skipped"),
				logging.Error(err),
			)
			sink.Log(fmt.Sprintf("Skipping %s: download failed", name))
		}
		return sheet.Page{}, false
	}
	path := filepath.Join(dir, name)
	if err := c.files.WriteFile(path, data); err != nil {
		logging.WarnWithContext(c.log(ctx), "page not saved", "page_write_failed",
			logging.Path(path),
			logging.String(logging.FieldImpact, "page skipped"),
			logging.Error(err),
		)
		sink.Log(fmt.Sprintf("Skipping %s: not saved", name))
		return sheet.Page{}, false
	}
	sink.Log(fmt.Sprintf("Downloaded %s", name))
	return sheet.Page{Instrument: part, Sequence: seq, Name: name, Path: path, URL: url}, true
}

// nextPage advances the preview, retrying timeouts up to PaginationRetries.
func (c *Controller) nextPage(ctx context.Context) (bool, error) {
	for attempt := 0; ; attempt++ {
		ok, err := c.client.NextPage(ctx)
		if err == nil {
			return ok, nil
		}
		if !services.IsTimeout(err) || attempt >= c.opts.PaginationRetries || ctx.Err() != nil {
			return false, err
		}
		c.log(ctx).Debug("next page timed out, retrying", logging.Int("attempt", attempt+1))
	}
}
