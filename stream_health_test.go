package main

import (
	"strings"
	"testing"
	"time"

	"camviewer/stats"
)

func TestStreamHealthReportsOnlyTransitions(t *testing.T) {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	states := make(map[string]streamHealthState)
	snaps := []stats.StreamSnapshot{
		{Name: "left", Up: true},
		{Name: "rgb", Up: true, LastFrame: now.Add(-3 * time.Second), DecodeErrors: 1200},
	}

	lines := streamHealthTransitions(states, snaps, now)
	if len(lines) != 2 {
		t.Fatalf("expected initial report for both streams, got %q", lines)
	}
	if lines[0] != "left subscribed idle last_frame=never" {
		t.Fatalf("unexpected left line %q", lines[0])
	}
	if lines[1] != "rgb subscribed active last_frame=3s decode_errors=1,200" {
		t.Fatalf("unexpected rgb line %q", lines[1])
	}

	if lines := streamHealthTransitions(states, snaps, now.Add(time.Minute)); len(lines) != 0 {
		t.Fatalf("expected no transitions, got %q", lines)
	}

	later := now.Add(3 * time.Minute)
	lines = streamHealthTransitions(states, snaps, later)
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "rgb subscribed idle") {
		t.Fatalf("expected rgb to go idle, got %q", lines)
	}

	snaps[0].Up = false
	lines = streamHealthTransitions(states, snaps, later)
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "left unsubscribed idle") {
		t.Fatalf("expected left to report unsubscribed, got %q", lines)
	}
}

func TestAgeString(t *testing.T) {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{at: time.Time{}, want: "never"},
		{at: now.Add(500 * time.Millisecond), want: "0s"},
		{at: now.Add(-90*time.Second - 300*time.Millisecond), want: "1m30s"},
	}
	for _, tc := range cases {
		if got := ageString(now, tc.at); got != tc.want {
			t.Fatalf("ageString(%v) = %q, want %q", tc.at, got, tc.want)
		}
	}
}
