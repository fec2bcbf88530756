package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"camviewer/frame"

	"golang.org/x/sync/errgroup"
)

// ErrShutdownTimeout reports stream tasks that did not observe cancellation
// within the grace period.
var ErrShutdownTimeout = errors.New("stream tasks did not terminate within grace period")

var errAlreadyStarted = errors.New("coordinator already started")

// State is the coordinator lifecycle phase.
type State int32

const (
	// StateInitializing: the display surface is not drawn yet.
	StateInitializing State = iota
	// StateRunning: the surface exists and every stream task is live.
	StateRunning
	// StateTerminating: shutdown was requested or the UI loop ended.
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Surface is the display the coordinator supervises. Run drives the UI loop
// and returns when the user exits or ctx is cancelled. Ready is closed once,
// when the surface can accept frames.
type Surface interface {
	Sink
	Ready() <-chan struct{}
	Run(ctx context.Context) error
}

// Coordinator starts one task per stream next to the UI loop and tears them
// all down together.
type Coordinator struct {
	surface     Surface
	subscribers []*Subscriber
	state       atomic.Int32
	terminated  atomic.Int32

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	failures map[string]error

	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

// NewCoordinator builds one Subscriber per descriptor, all gated on the
// surface becoming ready.
func NewCoordinator(surface Surface, transport Transport, decoder frame.Decoder, selector *Selector, descs []Descriptor, opts ...Option) *Coordinator {
	subs := make([]*Subscriber, 0, len(descs))
	for _, d := range descs {
		subs = append(subs, NewSubscriber(d, transport, decoder, selector, surface, surface.Ready(), opts...))
	}
	return &Coordinator{
		surface:     surface,
		subscribers: subs,
		failures:    make(map[string]error),
		done:        make(chan struct{}),
	}
}

// Subscribers returns the stream tasks in descriptor order.
func (c *Coordinator) Subscribers() []*Subscriber {
	return append([]*Subscriber(nil), c.subscribers...)
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Terminated returns how many stream tasks have returned.
func (c *Coordinator) Terminated() int {
	return int(c.terminated.Load())
}

// Failures returns the streams whose subscription failed, with the cause.
func (c *Coordinator) Failures() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]error, len(c.failures))
	for k, v := range c.failures {
		out[k] = v
	}
	return out
}

// Run supervises the surface loop and every stream task until the surface
// loop ends or ctx is cancelled. A failed stream is logged and left stopped;
// the others keep running. Run returns the surface loop's error, if any.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errAlreadyStarted
	}
	c.started = true
	if c.stopped {
		c.mu.Unlock()
		c.finish()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer c.finish()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.surface.Run(gctx)
		c.enterTerminating()
		// The surface returning nil (user exit) must still stop the streams.
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("display: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-c.surface.Ready():
			if c.state.CompareAndSwap(int32(StateInitializing), int32(StateRunning)) {
				log.Printf("Streams: display ready, %d stream(s) running", len(c.subscribers))
			}
		case <-gctx.Done():
		}
		return nil
	})

	for _, s := range c.subscribers {
		s := s
		g.Go(func() error {
			defer c.terminated.Add(1)
			if err := s.Run(gctx); err != nil {
				c.recordFailure(s.Name(), err)
			}
			return nil
		})
	}

	err := g.Wait()
	c.enterTerminating()
	return err
}

// Shutdown cancels every task. It does not wait; use Wait. Safe to call more
// than once and before Run.
func (c *Coordinator) Shutdown() {
	c.stopOnce.Do(func() {
		c.enterTerminating()
		c.mu.Lock()
		c.stopped = true
		cancel := c.cancel
		started := c.started
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if !started {
			c.finish()
		}
	})
}

// Wait blocks until Run has returned, or reports ErrShutdownTimeout after
// grace.
func (c *Coordinator) Wait(grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-c.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w (%d of %d stopped after %s)", ErrShutdownTimeout, c.Terminated(), len(c.subscribers), grace)
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) enterTerminating() {
	c.state.Store(int32(StateTerminating))
}

func (c *Coordinator) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Coordinator) recordFailure(name string, err error) {
	c.mu.Lock()
	c.failures[name] = err
	remaining := len(c.subscribers) - len(c.failures)
	c.mu.Unlock()
	log.Printf("Stream %s: %v; stream stopped, %d other stream(s) unaffected", name, err, remaining)
}
