package ui

import (
	"testing"
	"time"

	"github.com/five82/tracksync/internal/cache"
	"github.com/five82/tracksync/internal/tracking"
)

func TestFormatAge(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{300 * time.Millisecond, "now"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 10*time.Second, "3m"},
		{26 * time.Hour, "26h"},
	}
	for _, tc := range cases {
		if got := formatAge(tc.in); got != tc.want {
			t.Fatalf("formatAge(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  short  ", 10); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("connection refused", 8); got != "connect…" {
		t.Fatalf("truncate long = %q, want %q", got, "connect…")
	}
}

func TestFreshness(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name  string
		entry cache.Entry
		want  string
	}{
		{"never loaded", cache.Entry{}, "empty"},
		{"stream only", cache.Entry{PushedAt: now}, "pushed"},
		{"fetched", cache.Entry{FetchedAt: now.Add(-time.Second), TTL: time.Minute}, "fresh"},
		{"expired", cache.Entry{FetchedAt: now.Add(-2 * time.Minute), TTL: time.Minute, PushedAt: now}, "stale"},
	}
	for _, tc := range cases {
		if got := freshness(tc.entry, now); got != tc.want {
			t.Fatalf("%s: freshness = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRecentAlerts_OrdersByTimestamp(t *testing.T) {
	alerts := []tracking.Alert{
		{ID: "late", Timestamp: "2026-03-01T10:05:00Z"},
		{ID: "untimed-1"},
		{ID: "early", Timestamp: "2026-03-01T09:00:00Z"},
		{ID: "mid", Timestamp: "2026-03-01T09:30:00.5Z"},
		{ID: "untimed-2"},
	}

	got := recentAlerts(alerts, 4)
	want := []string{"late", "mid", "early", "untimed-2"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("alert %d = %q, want %q", i, got[i].ID, id)
		}
	}
	if alerts[0].ID != "late" || alerts[4].ID != "untimed-2" {
		t.Fatal("recentAlerts modified its input")
	}
}
