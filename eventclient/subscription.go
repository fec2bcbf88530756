package eventclient

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"camviewer/internal/ratelimit"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/zeebo/xxh3"
)

// malformedLogInterval throttles the malformed-message log per subscription.
const malformedLogInterval = 10 * time.Second

var (
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("subscription closed")
	// ErrConnectionLost is returned by Next when the broker connection drops
	// and the client is not configured to reconnect.
	ErrConnectionLost = errors.New("connection lost")
)

// Subscription is a sampled, cancelable sequence of events for one topic.
// Once it ends (Close, failure) it cannot be restarted; subscribe again.
//
// Thread Safety:
//   - handle runs on the MQTT router goroutine
//   - Next is meant for a single consumer goroutine
//   - Close and fail may race with both
type Subscription struct {
	topic  string
	everyN uint64

	events chan Event
	done   chan struct{}
	once   sync.Once
	errMu  sync.Mutex
	err    error

	published atomic.Uint64
	delivered atomic.Uint64
	replaced  atomic.Uint64
	malformed ratelimit.Counter
	repeated  ratelimit.Counter
	digest    atomic.Uint64

	release func(*Subscription)
}

func newSubscription(topic string, everyN int, release func(*Subscription)) *Subscription {
	if everyN <= 0 {
		everyN = 1
	}
	return &Subscription{
		topic:     topic,
		everyN:    uint64(everyN),
		events:    make(chan Event, 1),
		done:      make(chan struct{}),
		malformed: ratelimit.NewCounter(malformedLogInterval),
		repeated:  ratelimit.NewCounter(malformedLogInterval),
		release:   release,
	}
}

// Topic returns the MQTT topic this subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Next blocks until the next sampled event, ctx cancellation, or the end of
// the subscription. After the end it returns ErrClosed or the failure cause.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-s.done:
		return Event{}, s.Err()
	}
}

// Err returns why the subscription ended, or nil while it is live.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription and unsubscribes from the broker. Safe to call
// more than once.
func (s *Subscription) Close() error {
	if s.end(ErrClosed) && s.release != nil {
		s.release(s)
	}
	return nil
}

func (s *Subscription) fail(err error) {
	s.end(err)
}

func (s *Subscription) end(err error) bool {
	ended := false
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
		ended = true
	})
	return ended
}

// handle samples every Nth published message: the 1st, N+1th, 2N+1th, ...
func (s *Subscription) handle(_ mqtt.Client, msg mqtt.Message) {
	n := s.published.Add(1)
	if (n-1)%s.everyN != 0 {
		return
	}
	ev, err := ParseEnvelope(msg.Payload())
	if err != nil {
		if total, ok := s.malformed.Inc(); ok {
			log.Printf("MQTT: %s: dropping malformed message (%d so far): %v", s.topic, total, err)
		}
		return
	}
	ev.Topic = msg.Topic()
	s.checkRepeated(ev)
	s.deliver(ev)
}

// checkRepeated counts sampled payloads that are byte-identical to the
// previous one, which usually means the camera stopped updating.
func (s *Subscription) checkRepeated(ev Event) {
	sum := xxh3.Hash(ev.Payload)
	if s.digest.Swap(sum) != sum {
		return
	}
	if total, ok := s.repeated.Inc(); ok {
		log.Printf("MQTT: %s: seq=%d repeats the previous image (%d so far)", s.topic, ev.Seq, total)
	}
}

// deliver keeps at most one pending event. A newer event replaces an
// unconsumed one so a slow consumer always sees the latest frame, and the
// MQTT router is never blocked.
func (s *Subscription) deliver(ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.events <- ev:
			s.delivered.Add(1)
			return
		default:
		}
		select {
		case <-s.events:
			s.replaced.Add(1)
		default:
		}
	}
}

// SubscriptionStats is a snapshot of transport-side counters.
type SubscriptionStats struct {
	Published uint64
	Delivered uint64
	Replaced  uint64
	Malformed uint64
	Repeated  uint64
}

// Stats returns the transport-side counters.
func (s *Subscription) Stats() SubscriptionStats {
	return SubscriptionStats{
		Published: s.published.Load(),
		Delivered: s.delivered.Load(),
		Replaced:  s.replaced.Load(),
		Malformed: s.malformed.Total(),
		Repeated:  s.repeated.Total(),
	}
}
