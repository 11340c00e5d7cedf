package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"sheetfetch/internal/catalog"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// Options configures the browser session.
type Options struct {
	BaseURL   string
	ExecPath  string
	Headless  bool
	UserAgent string
	// ElementTimeout bounds waits for optional elements such as the
	// orchestration header. Zero means two seconds.
	ElementTimeout time.Duration
	// Settle is the pause after typing a query before results are read.
	// Zero means two seconds.
	Settle          time.Duration
	DownloadTimeout time.Duration
}

// Browser is a catalog.Client backed by one Chromium tab.
type Browser struct {
	opts       Options
	tab        context.Context
	closeTab   context.CancelFunc
	closeAlloc context.CancelFunc
	fetcher    *catalog.HTTPFetcher
	logger     *slog.Logger
}

var _ catalog.Client = (*Browser)(nil)

// Open launches Chromium and prepares a tab. ctx bounds the launch only.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Browser, error) {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 2 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	logger = logging.NewComponentLogger(logger, "browser")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, closeAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, closeTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), logging.String(logging.FieldEventType, "cdp_error"))
		}),
	)

	b := &Browser{
		opts:       opts,
		tab:        tab,
		closeTab:   closeTab,
		closeAlloc: closeAlloc,
		fetcher:    catalog.NewHTTPFetcher(opts.DownloadTimeout, opts.UserAgent),
		logger:     logger,
	}
	if err := b.run(ctx, emulation.SetDeviceMetricsOverride(viewportWidth, viewportHeight, 1, false)); err != nil {
		b.Close()
		return nil, services.Wrap(services.ErrConfiguration, "browser", "launch", "chromium did not start", err)
	}
	logger.Info("browser session started",
		logging.Bool("headless", opts.Headless),
		logging.String("base_url", opts.BaseURL),
	)
	return b, nil
}

// run executes actions on the tab, bounded by ctx.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// within is run with a tighter bound, reporting whether the bound expired.
func (b *Browser) within(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) (bool, error) {
	short, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := b.run(short, actions...)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return true, nil
	}
	return false, err
}

func click(xpath string) chromedp.Action {
	return chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible)
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrTransient, "browser", op, "", err)
}

func (b *Browser) Search(ctx context.Context, query string) ([]sheet.Candidate, error) {
	var raw []rawResult
	err := b.run(ctx,
		chromedp.Navigate(b.opts.BaseURL+"/search"),
		chromedp.WaitVisible(xpathSearchBar, chromedp.BySearch),
		chromedp.Clear(xpathSearchBar, chromedp.BySearch),
		chromedp.SendKeys(xpathSearchBar, query, chromedp.BySearch),
		chromedp.WaitReady(xpathResultsParent, chromedp.BySearch),
		chromedp.Sleep(b.opts.Settle),
		chromedp.Evaluate(resultsScript(), &raw),
	)
	if err != nil {
		return nil, wrap("search", err)
	}
	candidates := parseResults(raw)
	b.logger.Debug("search results parsed",
		logging.String("query", query),
		logging.Int("items", len(raw)),
		logging.Int("songs", len(candidates)),
	)
	return candidates, nil
}

func (b *Browser) SelectCandidate(ctx context.Context, candidate sheet.Candidate) ([]string, error) {
	if err := b.run(ctx, click(resultLink(candidate.Position)), click(xpathChordsButton)); err != nil {
		return nil, wrap("select candidate", err)
	}
	expired, err := b.within(ctx, b.opts.ElementTimeout, click(xpathOrchestration))
	if err != nil {
		return nil, wrap("open orchestration", err)
	}
	if expired {
		return nil, catalog.ErrOrchestrationNotFound
	}

	var labels []string
	err = b.run(ctx,
		click(xpathKeyButton),
		chromedp.WaitVisible(xpathKeyButtons, chromedp.BySearch),
		chromedp.Evaluate(buttonTextsScript(xpathKeyButtons), &labels),
	)
	if err != nil {
		return nil, wrap("read keys", err)
	}
	keys := trimLabels(labels)
	if len(keys) == 0 {
		return nil, catalog.ErrNoKeys
	}
	if err := b.run(ctx, click(buttonWithText(xpathKeyButtons, keys[0]))); err != nil {
		return nil, wrap("select default key", err)
	}
	return keys, nil
}

func (b *Browser) SelectKey(ctx context.Context, key string) ([]string, error) {
	target := buttonWithText(xpathKeyButtons, key)
	var present bool
	err := b.run(ctx,
		click(xpathKeyButton),
		chromedp.WaitVisible(xpathKeyButtons, chromedp.BySearch),
		chromedp.Evaluate(existsScript(target), &present),
	)
	if err != nil {
		return nil, wrap("open key menu", err)
	}
	action := click(xpathKeyButton)
	if present {
		action = click(target)
	}
	if err := b.run(ctx, action); err != nil {
		return nil, wrap("select key", err)
	}
	return b.readParts(ctx)
}

func (b *Browser) readParts(ctx context.Context) ([]string, error) {
	var labels []string
	err := b.run(ctx,
		click(xpathPartsButton),
		chromedp.WaitVisible(xpathPartButtons, chromedp.BySearch),
		chromedp.Evaluate(buttonTextsScript(xpathPartButtons), &labels),
		click(xpathPartsButton),
	)
	if err != nil {
		return nil, wrap("read parts", err)
	}
	return labels, nil
}

func (b *Browser) SelectInstrument(ctx context.Context, name string) error {
	var labels []string
	err := b.run(ctx,
		click(xpathPartsButton),
		chromedp.WaitVisible(xpathPartButtons, chromedp.BySearch),
		chromedp.Evaluate(buttonTextsScript(xpathPartButtons), &labels),
	)
	if err != nil {
		return wrap("open parts menu", err)
	}
	part, ok := catalog.MatchInstrument(trimLabels(labels), name)
	if !ok {
		_ = b.run(ctx, click(xpathPartsButton))
		return catalog.ErrInstrumentNotFound
	}
	return wrap("select instrument", b.run(ctx, click(buttonWithText(xpathPartButtons, part))))
}

func (b *Browser) NextPage(ctx context.Context) (bool, error) {
	var present bool
	if err := b.run(ctx, chromedp.Evaluate(existsScript(xpathNextButton), &present)); err != nil {
		return false, wrap("next page", err)
	}
	if !present {
		return false, nil
	}
	if err := b.run(ctx, click(xpathNextButton)); err != nil {
		return false, wrap("next page", err)
	}
	return true, nil
}

func (b *Browser) CurrentPageImageURL(ctx context.Context) (string, error) {
	var src string
	var ok bool
	expired, err := b.within(ctx, b.opts.ElementTimeout,
		chromedp.WaitVisible(xpathPageImage, chromedp.BySearch),
		chromedp.AttributeValue(xpathPageImage, "src", &src, &ok, chromedp.BySearch),
	)
	if err != nil {
		return "", wrap("read page image", err)
	}
	if expired || !ok {
		return "", nil
	}
	return strings.TrimSpace(src), nil
}

func (b *Browser) Fetch(ctx context.Context, url string) ([]byte, error) {
	return b.fetcher.Fetch(ctx, url)
}

func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := b.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, wrap("screenshot", err)
	}
	return buf, nil
}

// Close shuts the tab and the browser process.
func (b *Browser) Close() error {
	err := chromedp.Cancel(b.tab)
	b.closeTab()
	b.closeAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func trimLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		if label = strings.TrimSpace(label); label != "" {
			out = append(out, label)
		}
	}
	return out
}
