package ui

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const queueDelaySamples = 512

// delayWindow keeps the most recent draw-queue delays. Older samples are
// overwritten once the window is full.
type delayWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
}

func newDelayWindow(size int) *delayWindow {
	if size <= 0 {
		size = queueDelaySamples
	}
	return &delayWindow{samples: make([]time.Duration, 0, size)}
}

func (w *delayWindow) Observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, d)
		return
	}
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
}

// DelaySnapshot summarizes the delay window.
type DelaySnapshot struct {
	P50 time.Duration
	P99 time.Duration
	Max time.Duration
	N   int
}

func (w *delayWindow) Snapshot() DelaySnapshot {
	w.mu.Lock()
	sorted := slices.Clone(w.samples)
	w.mu.Unlock()
	n := len(sorted)
	if n == 0 {
		return DelaySnapshot{}
	}
	slices.Sort(sorted)
	return DelaySnapshot{
		P50: sorted[n/2],
		P99: sorted[(n-1)*99/100],
		Max: sorted[n-1],
		N:   n,
	}
}

// Metrics tracks display-level counters: how long uploads wait for the event
// goroutine, how many frames reached a view and how many were superseded
// before they could be drawn.
type Metrics struct {
	queueDelay   *delayWindow
	uploads      atomic.Uint64
	coalesced    atomic.Uint64
	pageSwitches atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{queueDelay: newDelayWindow(queueDelaySamples)}
}

func (m *Metrics) ObserveQueue(d time.Duration) {
	if m == nil {
		return
	}
	m.queueDelay.Observe(d)
}

func (m *Metrics) Upload() {
	if m == nil {
		return
	}
	m.uploads.Add(1)
}

func (m *Metrics) Coalesce() {
	if m == nil {
		return
	}
	m.coalesced.Add(1)
}

func (m *Metrics) PageSwitch() {
	if m == nil {
		return
	}
	m.pageSwitches.Add(1)
}

func (m *Metrics) QueueSnapshot() DelaySnapshot {
	if m == nil {
		return DelaySnapshot{}
	}
	return m.queueDelay.Snapshot()
}

func (m *Metrics) Uploads() uint64 {
	if m == nil {
		return 0
	}
	return m.uploads.Load()
}

func (m *Metrics) Coalesced() uint64 {
	if m == nil {
		return 0
	}
	return m.coalesced.Load()
}

func (m *Metrics) PageSwitches() uint64 {
	if m == nil {
		return 0
	}
	return m.pageSwitches.Load()
}
