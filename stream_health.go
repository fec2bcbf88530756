package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"camviewer/stats"

	"github.com/dustin/go-humanize"
)

const (
	streamHealthInterval  = 30 * time.Second
	streamIdleThreshold   = 2 * time.Minute
	streamHealthLogPrefix = "Stream Health: "
)

type streamHealthState struct {
	up          bool
	idle        bool
	initialized bool
}

// Purpose: Periodically log stream health transitions with low noise.
// Key aspects: Reports only when a stream's subscription or idle state changes.
// Upstream: run after the tracker is created.
// Downstream: stats.Tracker.Snapshot, log.Printf.
func startStreamHealthMonitor(ctx context.Context, tracker *stats.Tracker, interval time.Duration) {
	if tracker == nil {
		return
	}
	if interval <= 0 {
		interval = streamHealthInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		states := make(map[string]streamHealthState)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, line := range streamHealthTransitions(states, tracker.Snapshot(), time.Now().UTC()) {
					log.Printf("%s%s", streamHealthLogPrefix, line)
				}
			}
		}
	}()
}

// streamHealthTransitions updates states and returns one line per stream
// whose state changed since the previous call.
func streamHealthTransitions(states map[string]streamHealthState, snaps []stats.StreamSnapshot, now time.Time) []string {
	var lines []string
	for _, snap := range snaps {
		idle := streamIsIdle(snap, now)
		state := states[snap.Name]
		if state.initialized && state.up == snap.Up && state.idle == idle {
			continue
		}
		states[snap.Name] = streamHealthState{up: snap.Up, idle: idle, initialized: true}
		lines = append(lines, formatStreamHealthLine(snap, idle, now))
	}
	return lines
}

func streamIsIdle(snap stats.StreamSnapshot, now time.Time) bool {
	if snap.LastFrame.IsZero() {
		return true
	}
	return now.Sub(snap.LastFrame) > streamIdleThreshold
}

func formatStreamHealthLine(snap stats.StreamSnapshot, idle bool, now time.Time) string {
	status := "subscribed"
	if !snap.Up {
		status = "unsubscribed"
	}
	state := "active"
	if idle {
		state = "idle"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s last_frame=%s", snap.Name, status, state, ageString(now, snap.LastFrame))
	if snap.DecodeErrors > 0 {
		fmt.Fprintf(&b, " decode_errors=%s", humanize.Comma(int64(snap.DecodeErrors)))
	}
	return b.String()
}

func ageString(now time.Time, at time.Time) string {
	if at.IsZero() {
		return "never"
	}
	age := now.Sub(at)
	if age < time.Second {
		return "0s"
	}
	return age.Truncate(time.Second).String()
}
