package ui

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"camviewer/frame"
	"camviewer/stats"

	"github.com/dustin/go-humanize"
)

const defaultSummaryInterval = 10 * time.Second

// Headless is the surface used without a terminal. It keeps the last frame
// geometry per stream and logs a periodic summary.
type Headless struct {
	tracker  *stats.Tracker
	interval time.Duration
	logf     func(format string, args ...any)

	ready    chan struct{}
	exit     chan struct{}
	exitOnce sync.Once

	mu      sync.Mutex
	streams map[string]*headlessStream
}

type headlessStream struct {
	frames uint64
	width  int
	height int
}

// NewHeadless returns a headless surface that logs every interval (10s when
// interval is not positive).
func NewHeadless(tracker *stats.Tracker, interval time.Duration) *Headless {
	if interval <= 0 {
		interval = defaultSummaryInterval
	}
	h := &Headless{
		tracker:  tracker,
		interval: interval,
		logf:     log.Printf,
		ready:    make(chan struct{}),
		exit:     make(chan struct{}),
		streams:  make(map[string]*headlessStream),
	}
	close(h.ready)
	return h
}

func (h *Headless) Ready() <-chan struct{} {
	return h.ready
}

func (h *Headless) Present(name string, f *frame.Frame) {
	if h == nil || f == nil {
		return
	}
	h.mu.Lock()
	s := h.streams[name]
	if s == nil {
		s = &headlessStream{}
		h.streams[name] = s
	}
	s.frames++
	s.width, s.height = f.Width, f.Height
	h.mu.Unlock()
}

// Presented returns how many frames reached the surface for name.
func (h *Headless) Presented(name string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s := h.streams[name]; s != nil {
		return s.frames
	}
	return 0
}

// Run logs summaries until ctx is cancelled or Stop is called.
func (h *Headless) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.logSummary()
		case <-ctx.Done():
			h.logSummary()
			return nil
		case <-h.exit:
			h.logSummary()
			return nil
		}
	}
}

func (h *Headless) Stop() {
	if h == nil {
		return
	}
	h.exitOnce.Do(func() { close(h.exit) })
}

// SystemWriter is nil: headless output stays on the console.
func (h *Headless) SystemWriter() io.Writer {
	return nil
}

func (h *Headless) logSummary() {
	for _, line := range h.summary() {
		h.logf("UI: %s", line)
	}
}

func (h *Headless) summary() []string {
	h.mu.Lock()
	geometry := make(map[string]headlessStream, len(h.streams))
	for name, s := range h.streams {
		geometry[name] = *s
	}
	h.mu.Unlock()

	var lines []string
	seen := make(map[string]bool)
	for _, snap := range h.tracker.Snapshot() {
		seen[snap.Name] = true
		line := stats.FormatLine(snap)
		if g, ok := geometry[snap.Name]; ok {
			line += fmt.Sprintf(" %dx%d", g.width, g.height)
		}
		lines = append(lines, line)
	}
	var extra []string
	for name := range geometry {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		g := geometry[name]
		lines = append(lines, name+" shown "+humanize.Comma(int64(g.frames)))
	}
	return lines
}
