package ui

import (
	"sync"
	"time"
)

// queueFunc runs fn on the UI event goroutine and redraws. It may block until
// fn has executed.
type queueFunc func(fn func())

// frameScheduler coalesces UI updates per key and caps the upload rate. Only
// the newest update for a key survives between flushes, so a fast stream never
// queues more than one pending upload.
type frameScheduler struct {
	queue        queueFunc
	mu           sync.Mutex
	pending      map[string]func()
	order        []string
	started      bool
	stopped      bool
	quit         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	frameTime    time.Duration
	drainTimeout time.Duration
	observeDelay func(time.Duration)
}

func newFrameScheduler(queue queueFunc, targetFPS int, drainTimeout time.Duration, observeDelay func(time.Duration)) *frameScheduler {
	if targetFPS <= 0 {
		targetFPS = 30
	}
	if drainTimeout <= 0 {
		drainTimeout = 100 * time.Millisecond
	}
	return &frameScheduler{
		queue:        queue,
		pending:      make(map[string]func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		frameTime:    time.Second / time.Duration(targetFPS),
		drainTimeout: drainTimeout,
		observeDelay: observeDelay,
	}
}

// Start launches the flush loop. Calls after the first, or after Stop, are no-ops.
func (f *frameScheduler) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.stopped {
		return
	}
	f.started = true
	go f.run()
}

// Stop flushes what is pending (bounded by the drain timeout) and ends the loop.
func (f *frameScheduler) Stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		started := f.started
		f.mu.Unlock()
		close(f.quit)
		if !started {
			return
		}
		select {
		case <-f.done:
		case <-time.After(f.drainTimeout):
		}
	})
}

// Schedule records fn as the pending update for id and reports whether it
// replaced an update that had not been flushed yet.
func (f *frameScheduler) Schedule(id string, fn func()) bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, replaced := f.pending[id]
	if !replaced {
		f.order = append(f.order, id)
	}
	f.pending[id] = fn
	return replaced
}

// Pending reports how many keys are waiting for the next flush.
func (f *frameScheduler) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *frameScheduler) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.quit:
			f.flushBounded(f.drainTimeout)
			return
		}
	}
}

func (f *frameScheduler) flush() {
	f.flushBounded(0)
}

func (f *frameScheduler) flushBounded(max time.Duration) {
	deadline := time.Time{}
	if max > 0 {
		deadline = time.Now().Add(max)
	}
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		batch := f.takeBatch()
		if len(batch) == 0 {
			return
		}

		queuedAt := time.Now()
		apply := func() {
			for _, fn := range batch {
				fn()
			}
			if f.observeDelay != nil {
				f.observeDelay(time.Since(queuedAt))
			}
		}
		if f.queue == nil {
			apply()
			continue
		}
		f.queue(apply)
	}
}

func (f *frameScheduler) takeBatch() []func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil
	}
	batch := make([]func(), 0, len(f.order))
	for _, id := range f.order {
		batch = append(batch, f.pending[id])
		delete(f.pending, id)
	}
	f.order = f.order[:0]
	return batch
}
