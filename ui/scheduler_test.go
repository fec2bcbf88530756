package ui

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFrameSchedulerCoalescesLatestPerID(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)

	var seq []string
	if f.Schedule("frame/rgb", func() { seq = append(seq, "a1") }) {
		t.Fatalf("first schedule reported a replacement")
	}
	if !f.Schedule("frame/rgb", func() { seq = append(seq, "a2") }) {
		t.Fatalf("second schedule for the same id should replace the first")
	}
	f.Schedule("log", func() { seq = append(seq, "b1") })
	if got := f.Pending(); got != 2 {
		t.Fatalf("expected 2 pending ids, got %d", got)
	}

	f.flush()

	if len(seq) != 2 {
		t.Fatalf("expected 2 callbacks, got %d (%v)", len(seq), seq)
	}
	if seq[0] != "a2" || seq[1] != "b1" {
		t.Fatalf("unexpected callback order/content: %v", seq)
	}

	f.flush()
	if len(seq) != 2 {
		t.Fatalf("expected no additional callbacks after empty flush, got %v", seq)
	}
}

func TestFrameSchedulerRunsBatchThroughQueue(t *testing.T) {
	var queued int
	var delays []time.Duration
	queue := func(fn func()) {
		queued++
		fn()
	}
	f := newFrameScheduler(queue, 60, 50*time.Millisecond, func(d time.Duration) { delays = append(delays, d) })

	var ran int
	f.Schedule("a", func() { ran++ })
	f.Schedule("b", func() { ran++ })
	f.flush()

	if queued != 1 {
		t.Fatalf("expected one queued batch, got %d", queued)
	}
	if ran != 2 {
		t.Fatalf("expected both updates to run, got %d", ran)
	}
	if len(delays) != 1 {
		t.Fatalf("expected one delay observation, got %d", len(delays))
	}
}

func TestFrameSchedulerFlushesPendingOnStop(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)
	var called atomic.Uint64

	f.Start()
	f.Schedule("pane", func() { called.Add(1) })
	f.Stop()

	if called.Load() != 1 {
		t.Fatalf("expected pending callback to flush on stop, got %d", called.Load())
	}
}

func TestFrameSchedulerStopIdempotent(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)
	f.Start()
	f.Stop()
	f.Stop()
}

func TestFrameSchedulerStartAfterStopIsNoop(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)
	var called atomic.Uint64
	f.Schedule("pane", func() { called.Add(1) })

	done := make(chan struct{})
	go func() {
		f.Stop()
		f.Start()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stop before start blocked")
	}

	time.Sleep(50 * time.Millisecond)
	if called.Load() != 0 {
		t.Fatalf("scheduler flushed after stop: %d", called.Load())
	}
}

func TestDelayWindowPercentiles(t *testing.T) {
	tr := newDelayWindow(4)
	for _, ms := range []int{5, 1, 3, 2, 4} {
		tr.Observe(time.Duration(ms) * time.Millisecond)
	}
	snap := tr.Snapshot()
	if snap.N != 4 {
		t.Fatalf("expected ring to hold 4 samples, got %d", snap.N)
	}
	// The oldest sample (5ms) was overwritten by 4ms.
	if snap.P50 != 3*time.Millisecond {
		t.Fatalf("p50 = %s, want 3ms", snap.P50)
	}
	if snap.P99 != 3*time.Millisecond {
		t.Fatalf("p99 = %s, want 3ms", snap.P99)
	}
	if snap.Max != 4*time.Millisecond {
		t.Fatalf("max = %s, want 4ms", snap.Max)
	}

	var m *Metrics
	m.Upload()
	m.Coalesce()
	if m.Uploads() != 0 || m.QueueSnapshot().N != 0 {
		t.Fatalf("nil metrics should be inert")
	}
}
