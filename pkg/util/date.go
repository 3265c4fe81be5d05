package util

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in daily_signals.date.
const DateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// NormalizeDate reduces a stored date value to YYYY-MM-DD. SQLite has no
// date type, so rows may carry "2024-05-01", "2024-05-01 00:00:00" or an
// RFC3339 timestamp depending on the writer. The calendar date is taken as
// written, without converting offsets. Unknown shapes are returned trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(DateLayout) {
		if _, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return s[:len(DateLayout)]
		}
	}
	if t, ok := ParseTime(s); ok {
		return t.UTC().Format(DateLayout)
	}
	return s
}

// UnixSeconds returns t as fractional unix seconds, the unit news items carry.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
