package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"camviewer/config"
	"camviewer/stats"

	"go.uber.org/goleak"
)

func startSubscriber(t *testing.T, name string, everyN int, sel *Selector, opts ...Option) (*fakeTransport, *recordingSink, *countingDecoder, *Subscriber, func() error) {
	t.Helper()
	transport := newFakeTransport()
	sink := newRecordingSink()
	dec := &countingDecoder{}
	desc := Descriptor{Name: name, Path: "/" + name, EveryN: everyN}
	s := NewSubscriber(desc, transport, dec, sel, sink, nil, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	stop := func() error {
		cancel()
		return <-errCh
	}
	return transport, sink, dec, s, stop
}

func TestSubscriberDecodeAttemptsFollowSamplingInterval(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for _, everyN := range []int{1, 2, 3, 4} {
		sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
		transport, sink, dec, s, stop := startSubscriber(t, "rgb", everyN, sel)
		sub := transport.sub(t, "rgb")

		const published = 10
		for i := 0; i < published; i++ {
			sub.publish("x")
		}
		want := (published + everyN - 1) / everyN
		waitFor(t, "decodes", func() bool { return s.Counters().Decoded.Load() == uint64(want) })
		if err := stop(); err != nil {
			t.Fatalf("every_n=%d: expected clean stop, got %v", everyN, err)
		}
		if got := int(dec.total.Load()); got != want {
			t.Fatalf("every_n=%d: expected %d decode attempts, got %d", everyN, want, got)
		}
		if sink.count("rgb") != want {
			t.Fatalf("every_n=%d: expected %d presents, got %d", everyN, want, sink.count("rgb"))
		}
		if sub.closed.Load() != 1 {
			t.Fatalf("every_n=%d: expected subscription closed once, got %d", everyN, sub.closed.Load())
		}
	}
}

func TestSubscriberSkipsCorruptFrameAndContinues(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
	logs := &logRecorder{}
	tracker := stats.NewTracker()
	transport, sink, _, s, stop := startSubscriber(t, "rgb", 1, sel, WithLogf(logs.logf), WithTracker(tracker))
	sub := transport.sub(t, "rgb")

	sub.publish("1")
	sub.publish("bad")
	sub.publish("2")
	waitFor(t, "two presents", func() bool { return sink.count("rgb") == 2 })

	if got := s.Counters().DecodeErrors.Load(); got != 1 {
		t.Fatalf("expected one decode error, got %d", got)
	}
	if logs.len() != 1 || !strings.Contains(logs.lines[0], "dropping frame seq=2") {
		t.Fatalf("expected one logged decode error for seq 2, got %v", logs.lines)
	}

	// Still subscribed after the bad frame.
	sub.publish("3")
	waitFor(t, "third present", func() bool { return sink.count("rgb") == 3 })

	if err := stop(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	snap := tracker.Snapshot()
	if len(snap) != 1 || snap[0].Presented != 3 || snap[0].DecodeErrors != 1 || snap[0].Received != 4 || snap[0].Up {
		t.Fatalf("unexpected tracker snapshot %+v", snap)
	}
	if strings.Join(sink.order, ",") != "rgb:49,rgb:50,rgb:51" {
		t.Fatalf("expected in-order presents, got %v", sink.order)
	}
}

func TestSubscriberDiscardsInactiveFramesAfterDecode(t *testing.T) {
	sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
	transport, sink, dec, s, stop := startSubscriber(t, "left", 1, sel)
	sub := transport.sub(t, "left")

	sub.publish("a")
	sub.publish("b")
	waitFor(t, "discards", func() bool { return s.Counters().Discarded.Load() == 2 })
	if dec.total.Load() != 2 {
		t.Fatalf("expected inactive frames to still be decoded, got %d attempts", dec.total.Load())
	}
	if sink.count("left") != 0 {
		t.Fatalf("expected no presents for inactive stream")
	}

	sel.Set("left")
	sub.publish("c")
	waitFor(t, "present after switch", func() bool { return sink.count("left") == 1 })
	stop()
}

func TestSubscriberSkipInactiveDecode(t *testing.T) {
	sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
	transport, sink, dec, s, stop := startSubscriber(t, "left", 1, sel, WithSkipInactiveDecode(true))
	sub := transport.sub(t, "left")

	sub.publish("a")
	sub.publish("b")
	waitFor(t, "discards", func() bool { return s.Counters().Discarded.Load() == 2 })
	if dec.total.Load() != 0 {
		t.Fatalf("expected no decode attempts for inactive stream, got %d", dec.total.Load())
	}

	sel.Set("left")
	sub.publish("c")
	waitFor(t, "present after switch", func() bool { return sink.count("left") == 1 })
	if dec.total.Load() != 1 {
		t.Fatalf("expected exactly one decode after switch, got %d", dec.total.Load())
	}
	stop()
}

func TestSubscriberSurfacesTransportFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
	transport, _, _, _, stop := startSubscriber(t, "rgb", 1, sel)
	sub := transport.sub(t, "rgb")

	lost := errors.New("connection lost: EOF")
	sub.failed <- lost
	waitFor(t, "subscription closed", func() bool { return sub.closed.Load() == 1 })

	err := stop()
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *SubscriptionError, got %v", err)
	}
	if subErr.Stream != "rgb" || !errors.Is(err, lost) {
		t.Fatalf("unexpected subscription error %v", err)
	}
}

func TestSubscriberSubscribeFailure(t *testing.T) {
	sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
	transport := newFakeTransport()
	transport.failFor["rgb"] = errors.New("not connected")
	s := NewSubscriber(Descriptor{Name: "rgb", EveryN: 1}, transport, nil, sel, newRecordingSink(), nil)

	err := s.Run(context.Background())
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) || subErr.Stream != "rgb" {
		t.Fatalf("expected subscription error for rgb, got %v", err)
	}
}

func TestSubscriberWaitsForReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
	transport := newFakeTransport()
	ready := make(chan struct{})
	s := NewSubscriber(Descriptor{Name: "rgb", EveryN: 1}, transport, nil, sel, newRecordingSink(), ready)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case name := <-transport.opened:
		t.Fatalf("stream %s subscribed before the display was ready", name)
	default:
	}
	close(ready)
	if name := <-transport.opened; name != "rgb" {
		t.Fatalf("expected rgb subscription, got %s", name)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("expected nil on cancellation, got %v", err)
	}
}

func TestSubscriberCancelledBeforeReady(t *testing.T) {
	sel, _ := NewSelector(config.DefaultStreamNames, "rgb")
	transport := newFakeTransport()
	s := NewSubscriber(Descriptor{Name: "rgb", EveryN: 1}, transport, nil, sel, newRecordingSink(), make(chan struct{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if transport.count() != 0 {
		t.Fatalf("expected no subscription after early cancel")
	}
}
