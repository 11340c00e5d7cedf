package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// journalName is the JSON journal kept in the log directory.
const journalName = "sheetfetch.log"

// journalRotateBytes is the size past which the next run starts a fresh
// journal.
const journalRotateBytes = 8 << 20

// rotateJournal renames the journal at path aside once it reaches limit
// bytes. Rotated journals expire through DefaultRetentionTargets.
func rotateJournal(path string, limit int64, now time.Time) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < limit {
		return nil
	}
	rotated := strings.TrimSuffix(path, ".log") + "-" + now.Format("20060102-150405") + ".log"
	return os.Rename(path, rotated)
}

// newJSONHandler encodes records the way the journal stores them: "ts" in
// UTC with milliseconds, lowercase levels, durations as text and callers as
// "package/file.go:line".
func newJSONHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: journalAttr,
	})
}

func journalAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z"))
		}
		return attr
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
		return attr
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			dir := filepath.Base(filepath.Dir(src.File))
			attr.Value = slog.StringValue(fmt.Sprintf("%s/%s:%d", dir, filepath.Base(src.File), src.Line))
		}
		return attr
	}
	if attr.Value.Kind() == slog.KindDuration {
		attr.Value = slog.StringValue(attr.Value.Duration().String())
	}
	return attr
}

// journalTee sends every record to the console at its own level and to the
// journal at debug, so a quiet console still leaves a full trail on disk.
type journalTee struct {
	console slog.Handler
	journal slog.Handler
}

func newJournalTee(console, journal slog.Handler) slog.Handler {
	return &journalTee{console: console, journal: journal}
}

func (t *journalTee) Enabled(ctx context.Context, level slog.Level) bool {
	return t.journal.Enabled(ctx, level) || t.console.Enabled(ctx, level)
}

func (t *journalTee) Handle(ctx context.Context, record slog.Record) error {
	var consoleErr error
	if t.console.Enabled(ctx, record.Level) {
		consoleErr = t.console.Handle(ctx, record.Clone())
	}
	var journalErr error
	if t.journal.Enabled(ctx, record.Level) {
		journalErr = t.journal.Handle(ctx, record)
	}
	return errors.Join(consoleErr, journalErr)
}

func (t *journalTee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &journalTee{console: t.console.WithAttrs(attrs), journal: t.journal.WithAttrs(attrs)}
}

func (t *journalTee) WithGroup(name string) slog.Handler {
	return &journalTee{console: t.console.WithGroup(name), journal: t.journal.WithGroup(name)}
}
