package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// consoleStamp prints clock time for records from today and adds the date
// for earlier ones, which only long overnight batches produce.
func consoleStamp(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	ts, now = ts.In(time.Local), now.In(time.Local)
	if ts.Year() == now.Year() && ts.YearDay() == now.YearDay() {
		return ts.Format("15:04:05")
	}
	return ts.Format("Jan 02 15:04:05")
}

// attrString is the bare text of v for the header subject.
func attrString(v slog.Value) string {
	return renderValue(v.Resolve())
}

// formatValue is the text of v for an attribute line. Text that would be
// ambiguous on one line is quoted.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	out := renderValue(v)
	switch v.Kind() {
	case slog.KindString, slog.KindAny:
		if needsQuotes(out) {
			return strconv.Quote(out)
		}
	}
	return out
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return roundDuration(v.Duration()).String()
	case slog.KindTime:
		return v.Time().In(time.Local).Format(time.DateTime)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case []string:
			// Key and part menus.
			return strings.Join(x, ", ")
		default:
			return fmt.Sprint(x)
		}
	default:
		return v.String()
	}
}

// roundDuration keeps page and restore timings readable.
func roundDuration(d time.Duration) time.Duration {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second)
	case d >= time.Second:
		return d.Round(10 * time.Millisecond)
	default:
		return d.Round(time.Millisecond)
	}
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsFunc(s, func(r rune) bool {
		return r < ' ' || r == '"' || r == '='
	}) || strings.TrimSpace(s) != s
}
