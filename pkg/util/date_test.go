package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"2024-05-01":                "2024-05-01",
		" 2024-05-01 ":              "2024-05-01",
		"2024-05-01 00:00:00":       "2024-05-01",
		"2024-05-01T00:00:00Z":      "2024-05-01",
		"2024-05-01T01:30:00+05:30": "2024-05-01",
		"1714521600":                "2024-05-01",
		"garbage":                   "garbage",
	}
	for in, want := range cases {
		if got := NormalizeDate(in); got != want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnixSeconds(t *testing.T) {
	ts := time.Unix(1700000000, 500_000_000)
	if got := UnixSeconds(ts); got != 1700000000.5 {
		t.Fatalf("UnixSeconds() = %v", got)
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("", 7); got != 7 {
		t.Fatalf("empty: got %d", got)
	}
	if got := ParseIntDefault("x", 7); got != 7 {
		t.Fatalf("invalid: got %d", got)
	}
	if got := ParseIntDefault("42", 7); got != 42 {
		t.Fatalf("valid: got %d", got)
	}
}
