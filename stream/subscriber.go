package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"camviewer/eventclient"
	"camviewer/frame"
	"camviewer/stats"
)

// Subscription is a live, cancelable sequence of events for one stream.
type Subscription interface {
	Next(ctx context.Context) (eventclient.Event, error)
	Close() error
}

// Transport opens subscriptions. A subscription that ended cannot be
// restarted; a new Subscribe call is required.
type Transport interface {
	Subscribe(ctx context.Context, d Descriptor) (Subscription, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, d Descriptor) (Subscription, error)

func (fn TransportFunc) Subscribe(ctx context.Context, d Descriptor) (Subscription, error) {
	return fn(ctx, d)
}

// Sink receives decoded frames of the active stream. Present is called from
// subscriber goroutines and must not block on the display.
type Sink interface {
	Present(name string, f *frame.Frame)
}

// SubscriptionError reports a stream whose transport subscription failed or
// could not be opened. It is terminal for that stream only.
type SubscriptionError struct {
	Stream string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("stream %s: subscription failed: %v", e.Stream, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Subscriber owns the subscription of one stream for the lifetime of Run.
type Subscriber struct {
	desc      Descriptor
	transport Transport
	decoder   frame.Decoder
	selector  *Selector
	sink      Sink
	ready     <-chan struct{}

	counters           *stats.Counters
	skipInactiveDecode bool
	logf               func(format string, args ...any)
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithSkipInactiveDecode checks the active view before decoding instead of
// after. Presented frames are identical; inactive streams stop costing
// decode time, and a view switch shows the new stream from its next event.
func WithSkipInactiveDecode(skip bool) Option {
	return func(s *Subscriber) { s.skipInactiveDecode = skip }
}

// WithTracker records the stream's counters in t.
func WithTracker(t *stats.Tracker) Option {
	return func(s *Subscriber) {
		if t != nil {
			s.counters = t.Stream(s.desc.Name)
		}
	}
}

// WithLogf replaces log.Printf for this subscriber.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Subscriber) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// NewSubscriber wires one stream. ready gates delivery until the display
// exists; nil means ready immediately.
func NewSubscriber(desc Descriptor, transport Transport, decoder frame.Decoder, selector *Selector, sink Sink, ready <-chan struct{}, opts ...Option) *Subscriber {
	if decoder == nil {
		decoder = frame.Default
	}
	s := &Subscriber{
		desc:      desc,
		transport: transport,
		decoder:   decoder,
		selector:  selector,
		sink:      sink,
		ready:     ready,
		counters:  &stats.Counters{},
		logf:      log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stream name.
func (s *Subscriber) Name() string {
	return s.desc.Name
}

// Counters returns the live counters of this stream.
func (s *Subscriber) Counters() *stats.Counters {
	return s.counters
}

// Run waits for the display, subscribes, and processes events until ctx is
// cancelled (returns nil) or the subscription fails (returns a
// *SubscriptionError). Decode failures never end Run.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.ready != nil {
		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil
		}
	}

	sub, err := s.transport.Subscribe(ctx, s.desc)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &SubscriptionError{Stream: s.desc.Name, Err: err}
	}
	defer sub.Close()

	s.counters.MarkUp(true)
	defer s.counters.MarkUp(false)

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return &SubscriptionError{Stream: s.desc.Name, Err: err}
		}
		s.handle(ev)
	}
}

func (s *Subscriber) handle(ev eventclient.Event) {
	s.counters.ObserveReceived(len(ev.Payload), time.Now())

	if s.skipInactiveDecode && !s.selector.IsActive(s.desc.Name) {
		s.counters.Discarded.Add(1)
		return
	}

	f, err := s.decoder.Decode(ev.Payload)
	if err != nil {
		s.counters.DecodeErrors.Add(1)
		s.logf("Stream %s: dropping frame seq=%d: %v", s.desc.Name, ev.Seq, err)
		return
	}
	s.counters.Decoded.Add(1)

	// The selection may change between decode and this check; at most one
	// frame is shown late or dropped.
	if !s.selector.IsActive(s.desc.Name) {
		s.counters.Discarded.Add(1)
		return
	}
	s.sink.Present(s.desc.Name, f)
	s.counters.Presented.Add(1)
}
