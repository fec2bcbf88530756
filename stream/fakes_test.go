package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"camviewer/eventclient"
	"camviewer/frame"
)

var errBadPayload = errors.New("corrupt payload")

// countingDecoder turns any payload into a 2x1 frame, except "bad".
type countingDecoder struct {
	total atomic.Int64
}

func (d *countingDecoder) Decode(payload []byte) (*frame.Frame, error) {
	d.total.Add(1)
	if string(payload) == "bad" {
		return nil, &frame.DecodeError{Cause: errBadPayload}
	}
	f := frame.New(2, 1, frame.LayoutBGR)
	copy(f.Pix, payload)
	return f, nil
}

type fakeSubscription struct {
	name   string
	everyN int
	events chan eventclient.Event
	failed chan error
	closed atomic.Int32

	mu        sync.Mutex
	published int
	seq       uint64
}

// publish samples like the real transport: the 1st, N+1th, ... message is delivered.
func (s *fakeSubscription) publish(payload string) {
	s.mu.Lock()
	s.published++
	deliver := (s.published-1)%s.everyN == 0
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if deliver {
		s.events <- eventclient.Event{Seq: seq, Payload: []byte(payload)}
	}
}

func (s *fakeSubscription) Next(ctx context.Context) (eventclient.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.failed:
		return eventclient.Event{}, err
	case <-ctx.Done():
		return eventclient.Event{}, ctx.Err()
	}
}

func (s *fakeSubscription) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeTransport struct {
	mu      sync.Mutex
	subs    map[string]*fakeSubscription
	opened  chan string
	failFor map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subs:    make(map[string]*fakeSubscription),
		opened:  make(chan string, 16),
		failFor: make(map[string]error),
	}
}

func (t *fakeTransport) Subscribe(_ context.Context, d Descriptor) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.failFor[d.Name]; err != nil {
		return nil, err
	}
	sub := &fakeSubscription{
		name:   d.Name,
		everyN: d.EveryN,
		events: make(chan eventclient.Event),
		failed: make(chan error, 1),
	}
	if sub.everyN <= 0 {
		sub.everyN = 1
	}
	t.subs[d.Name] = sub
	t.opened <- d.Name
	return sub, nil
}

func (t *fakeTransport) sub(tb testing.TB, name string) *fakeSubscription {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		sub := t.subs[name]
		t.mu.Unlock()
		if sub != nil {
			return sub
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("stream %s never subscribed", name)
	return nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

type recordingSink struct {
	mu       sync.Mutex
	presents map[string]int
	order    []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{presents: make(map[string]int)}
}

func (s *recordingSink) Present(name string, f *frame.Frame) {
	s.mu.Lock()
	s.presents[name]++
	s.order = append(s.order, fmt.Sprintf("%s:%d", name, f.Pix[0]))
	s.mu.Unlock()
}

func (s *recordingSink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents[name]
}

type fakeSurface struct {
	*recordingSink
	ready     chan struct{}
	readyOnce sync.Once
	quit      chan error
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		recordingSink: newRecordingSink(),
		ready:         make(chan struct{}),
		quit:          make(chan error, 1),
	}
}

func (s *fakeSurface) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *fakeSurface) Ready() <-chan struct{} { return s.ready }

func (s *fakeSurface) Run(ctx context.Context) error {
	select {
	case err := <-s.quit:
		return err
	case <-ctx.Done():
		return nil
	}
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *logRecorder) logf(format string, args ...any) {
	l.mu.Lock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *logRecorder) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func waitFor(tb testing.TB, what string, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("timed out waiting for %s", what)
}
