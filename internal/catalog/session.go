package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"sheetfetch/internal/files"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
)

// SessionOptions bounds each catalog operation.
type SessionOptions struct {
	OperationTimeout time.Duration
	SearchTimeout    time.Duration
	DownloadTimeout  time.Duration
	// ScreenshotDir receives a PNG of the session view when an operation
	// fails. Empty disables screenshots.
	ScreenshotDir string
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = 2 * time.Second
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 10 * time.Second
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 30 * time.Second
	}
	return o
}

// Session serializes every call to a Client under the session lock and
// applies a per-operation timeout. Timeouts surface as services.ErrTimeout
// and are left to the caller to retry.
type Session struct {
	client Client
	lock   sync.Locker
	files  *files.Manager
	opts   SessionOptions
	logger *slog.Logger
	now    func() time.Time
}

var _ Client = (*Session)(nil)

// NewSession wraps client. A nil lock gets a private mutex.
func NewSession(client Client, lock sync.Locker, fm *files.Manager, opts SessionOptions, logger *slog.Logger) *Session {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	if fm == nil {
		fm = files.NewManager(nil, logger)
	}
	return &Session{
		client: client,
		lock:   lock,
		files:  fm,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(logger, "catalog"),
		now:    time.Now,
	}
}

func (s *Session) Search(ctx context.Context, query string) ([]sheet.Candidate, error) {
	var out []sheet.Candidate
	err := s.call(ctx, "search", s.opts.SearchTimeout, func(ctx context.Context) error {
		var err error
		out, err = s.client.Search(ctx, query)
		return err
	})
	return CapCandidates(out), err
}

func (s *Session) SelectCandidate(ctx context.Context, candidate sheet.Candidate) ([]string, error) {
	var keys []string
	err := s.call(ctx, "select candidate", s.opts.SearchTimeout, func(ctx context.Context) error {
		var err error
		keys, err = s.client.SelectCandidate(ctx, candidate)
		return err
	})
	return keys, err
}

func (s *Session) SelectKey(ctx context.Context, key string) ([]string, error) {
	var parts []string
	err := s.call(ctx, "select key", s.opts.SearchTimeout, func(ctx context.Context) error {
		var err error
		parts, err = s.client.SelectKey(ctx, key)
		return err
	})
	return parts, err
}

func (s *Session) SelectInstrument(ctx context.Context, name string) error {
	return s.call(ctx, "select instrument", s.opts.SearchTimeout, func(ctx context.Context) error {
		return s.client.SelectInstrument(ctx, name)
	})
}

func (s *Session) NextPage(ctx context.Context) (bool, error) {
	var ok bool
	err := s.call(ctx, "next page", s.opts.OperationTimeout, func(ctx context.Context) error {
		var err error
		ok, err = s.client.NextPage(ctx)
		return err
	})
	return ok, err
}

func (s *Session) CurrentPageImageURL(ctx context.Context) (string, error) {
	var url string
	err := s.call(ctx, "read page image", s.opts.OperationTimeout, func(ctx context.Context) error {
		var err error
		url, err = s.client.CurrentPageImageURL(ctx)
		return err
	})
	return url, err
}

func (s *Session) Fetch(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := s.call(ctx, "fetch page", s.opts.DownloadTimeout, func(ctx context.Context) error {
		var err error
		data, err = s.client.Fetch(ctx, url)
		return err
	})
	return data, err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.call(ctx, "screenshot", s.opts.OperationTimeout, func(ctx context.Context) error {
		var err error
		data, err = s.client.Screenshot(ctx)
		return err
	})
	return data, err
}

func (s *Session) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.client.Close()
}

// call runs fn under the session lock with a timeout derived from ctx.
func (s *Session) call(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	err := fn(opCtx)
	cancel()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	logger := logging.WithContext(ctx, s.logger)
	if errors.Is(err, context.DeadlineExceeded) {
		err = services.Wrap(services.ErrTimeout, "catalog", op, fmt.Sprintf("no response within %s", timeout), err)
	}
	logger.Debug("catalog operation failed",
		logging.String("operation", op),
		logging.Error(err),
	)
	if s.opts.ScreenshotDir != "" && op != "screenshot" && !IsNotFound(err) {
		s.saveScreenshotLocked(ctx, op)
	}
	return err
}

func (s *Session) saveScreenshotLocked(ctx context.Context, op string) {
	logger := logging.WithContext(ctx, s.logger)
	shotCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()
	data, err := s.client.Screenshot(shotCtx)
	if err != nil || len(data) == 0 {
		logger.Debug("screenshot unavailable", logging.String("operation", op), logging.Error(err))
		return
	}
	name := fmt.Sprintf("screenshot-%s-%s.png", files.Sanitize(op), s.now().Format("20060102-150405.000"))
	path := filepath.Join(s.opts.ScreenshotDir, name)
	if err := s.files.WriteFile(path, data); err != nil {
		logger.Debug("screenshot not saved", logging.Path(path), logging.Error(err))
		return
	}
	logger.Info("screenshot saved",
		logging.String("operation", op),
		logging.Path(path),
		logging.String(logging.FieldEventType, "catalog_screenshot"),
	)
}
