// Package eventclient implements the subscription transport for camera event
// services published over MQTT.
//
// Each camera service publishes one topic per stream under its prefix, e.g.
// oak0/rgb, oak0/disparity, oak0/left, oak0/right. A message is an envelope
// (see EncodeEnvelope) carrying sequence/timestamp metadata and the
// compressed image payload.
//
// Features:
//   - client-side sampling: deliver every Nth published message
//   - one pending event per subscription; newer frames replace unconsumed ones
//   - optional MQTT auto-reconnect with resubscribe on connect
//   - without auto-reconnect a lost connection ends every subscription with
//     ErrConnectionLost so the owner can decide what to do
package eventclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"camviewer/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// unsubscribeTimeout bounds each background unsubscribe and the wait for
// pending ones in Close.
const unsubscribeTimeout = 2 * time.Second

var errNotConnected = errors.New("not connected")

// Client maintains one MQTT connection to a camera service and the set of
// live subscriptions on it.
type Client struct {
	cfg    config.ServiceConfig
	client mqtt.Client

	mu     sync.Mutex
	subs   map[string]*Subscription
	unsubs sync.WaitGroup
}

// New creates a client for the service. Call Connect before Subscribe.
func New(cfg config.ServiceConfig) *Client {
	return &Client{
		cfg:  cfg,
		subs: make(map[string]*Subscription),
	}
}

// Connect establishes the broker connection, honouring ctx while waiting.
func (c *Client) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL())
	opts.SetClientID(fmt.Sprintf("%s-%d", c.cfg.ClientID, time.Now().UnixNano()))
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(time.Duration(c.cfg.ConnectTimeoutSeconds) * time.Second)
	opts.SetAutoReconnect(c.cfg.AutoReconnect)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	client := mqtt.NewClient(opts)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	log.Printf("MQTT: connecting to %s (%s)...", c.cfg.Name, c.cfg.BrokerURL())
	if err := waitToken(ctx, client.Connect()); err != nil {
		return fmt.Errorf("connect to %s at %s: %w", c.cfg.Name, c.cfg.BrokerURL(), err)
	}
	log.Printf("MQTT: connected to %s", c.cfg.Name)
	return nil
}

// Subscribe opens a subscription on the stream path, sampling every Nth
// message. The subscription ends when ctx is cancelled or Close is called.
func (c *Client) Subscribe(ctx context.Context, path string, everyN int) (*Subscription, error) {
	topic := c.cfg.Topic(path)
	sub := newSubscription(topic, everyN, c.release)

	c.mu.Lock()
	client := c.client
	if prev, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		prev.Close()
		c.mu.Lock()
	}
	c.subs[topic] = sub
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		c.forget(topic, sub)
		return nil, fmt.Errorf("subscribe %s: %w", topic, errNotConnected)
	}
	if err := waitToken(ctx, client.Subscribe(topic, c.cfg.QoS, sub.handle)); err != nil {
		c.forget(topic, sub)
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log.Printf("MQTT: subscribed to %s (every_n=%d)", topic, sub.everyN)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

// Publish wraps image in an envelope and publishes it on the stream path.
// It is used by the frame simulator and by tests against a live broker.
func (c *Client) Publish(ctx context.Context, path string, seq uint64, stamp time.Time, image []byte) error {
	topic := c.cfg.Topic(path)
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("publish %s: %w", topic, errNotConnected)
	}
	payload, err := EncodeEnvelope(seq, stamp, image)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if err := waitToken(ctx, client.Publish(topic, c.cfg.QoS, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close ends every subscription and disconnects.
func (c *Client) Close() {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	client := c.client
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	c.waitUnsubscribes(unsubscribeTimeout)
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	log.Printf("MQTT: %s client stopped", c.cfg.Name)
}

// onConnect resubscribes live subscriptions after an automatic reconnect.
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		token := client.Subscribe(sub.topic, c.cfg.QoS, sub.handle)
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			log.Printf("MQTT: %s: resubscribe failed: %v", sub.topic, token.Error())
			sub.fail(fmt.Errorf("resubscribe: %w", token.Error()))
		}
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	if c.cfg.AutoReconnect {
		log.Printf("MQTT: %s: connection lost: %v (will reconnect)", c.cfg.Name, err)
		return
	}
	log.Printf("MQTT: %s: connection lost: %v", c.cfg.Name, err)
	c.failAll(fmt.Errorf("%w: %v", ErrConnectionLost, err))
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.fail(err)
	}
}

// release drops a closed subscription and unsubscribes its topic, unless a
// newer subscription already owns the topic. The unsubscribe runs in the
// background so a stalled broker cannot hold up the closing stream.
func (c *Client) release(sub *Subscription) {
	c.mu.Lock()
	client := c.client
	owned := c.subs[sub.topic] == sub
	if owned {
		delete(c.subs, sub.topic)
	}
	c.mu.Unlock()
	if !owned || client == nil || !client.IsConnected() {
		return
	}
	topic := sub.topic
	c.unsubs.Add(1)
	go func() {
		defer c.unsubs.Done()
		token := client.Unsubscribe(topic)
		if !token.WaitTimeout(unsubscribeTimeout) {
			log.Printf("MQTT: %s: unsubscribe not acknowledged within %s", topic, unsubscribeTimeout)
			return
		}
		if err := token.Error(); err != nil {
			log.Printf("MQTT: %s: unsubscribe failed: %v", topic, err)
		}
	}()
}

// waitUnsubscribes waits up to max for background unsubscribes and reports
// whether they all finished.
func (c *Client) waitUnsubscribes(max time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.unsubs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(max):
		return false
	}
}

func (c *Client) forget(topic string, sub *Subscription) {
	c.mu.Lock()
	if c.subs[topic] == sub {
		delete(c.subs, topic)
	}
	c.mu.Unlock()
	sub.end(ErrClosed)
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
