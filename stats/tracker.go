// Package stats tracks per-stream frame counters for display in the UI footer,
// the headless summary log and the Prometheus endpoint.
package stats

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counters holds the live counters of one stream. All fields are updated
// from the stream's subscriber goroutine and read from anywhere.
type Counters struct {
	Received     atomic.Uint64
	Decoded      atomic.Uint64
	DecodeErrors atomic.Uint64
	Presented    atomic.Uint64
	Discarded    atomic.Uint64
	Bytes        atomic.Uint64
	up           atomic.Bool
	lastFrame    atomic.Int64
}

// MarkUp records whether the stream currently has a live subscription.
func (c *Counters) MarkUp(up bool) {
	if c == nil {
		return
	}
	c.up.Store(up)
}

// ObserveReceived counts one delivered event of n payload bytes.
func (c *Counters) ObserveReceived(n int, now time.Time) {
	if c == nil {
		return
	}
	c.Received.Add(1)
	c.Bytes.Add(uint64(n))
	c.lastFrame.Store(now.UnixNano())
}

// Tracker tracks frame statistics by stream
type Tracker struct {
	// counters live in sync.Map so per-frame increments never take a tracker-wide lock
	streams sync.Map // string -> *Counters
	start   atomic.Int64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// Stream returns the counters for name, creating them on first use.
func (t *Tracker) Stream(name string) *Counters {
	if t == nil {
		return nil
	}
	if v, ok := t.streams.Load(name); ok {
		return v.(*Counters)
	}
	v, _ := t.streams.LoadOrStore(name, &Counters{})
	return v.(*Counters)
}

// Uptime returns time since the tracker was created.
func (t *Tracker) Uptime() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(time.Unix(0, t.start.Load()))
}

// StreamSnapshot is a point-in-time copy of one stream's counters.
type StreamSnapshot struct {
	Name         string
	Received     uint64
	Decoded      uint64
	DecodeErrors uint64
	Presented    uint64
	Discarded    uint64
	Bytes        uint64
	Up           bool
	LastFrame    time.Time
}

// Snapshot returns every stream's counters sorted by name.
func (t *Tracker) Snapshot() []StreamSnapshot {
	if t == nil {
		return nil
	}
	var out []StreamSnapshot
	t.streams.Range(func(key, value any) bool {
		c := value.(*Counters)
		s := StreamSnapshot{
			Name:         key.(string),
			Received:     c.Received.Load(),
			Decoded:      c.Decoded.Load(),
			DecodeErrors: c.DecodeErrors.Load(),
			Presented:    c.Presented.Load(),
			Discarded:    c.Discarded.Load(),
			Bytes:        c.Bytes.Load(),
			Up:           c.up.Load(),
		}
		if ns := c.lastFrame.Load(); ns != 0 {
			s.LastFrame = time.Unix(0, ns)
		}
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FormatLine renders one stream's counters for a status line.
func FormatLine(s StreamSnapshot) string {
	state := "down"
	if s.Up {
		state = "up"
	}
	return fmt.Sprintf("%s [%s] recv %s shown %s err %s %s",
		s.Name,
		state,
		humanize.Comma(int64(s.Received)),
		humanize.Comma(int64(s.Presented)),
		humanize.Comma(int64(s.DecodeErrors)),
		humanize.Bytes(s.Bytes),
	)
}
