// Package memory is an in-process broker with MQTT filter semantics, used by tests
// and by the single-process demo.
package memory

import (
	"context"
	"sync"

	"github.com/edgeflare/pumpdemo/pkg/topic"
	"github.com/edgeflare/pumpdemo/pkg/transport"
)

type subscription struct {
	client  *Client
	filter  string
	handler transport.Handler
}

// Broker fans published messages out to matching subscriptions.
// Delivery is synchronous on the publisher's goroutine.
type Broker struct {
	subs []subscription
	mu   sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{}
}

// Client returns a new unconnected client of the broker.
func (b *Broker) Client() *Client {
	return &Client{broker: b}
}

func (b *Broker) subscribe(s subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *Broker) drop(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.client != c {
			kept = append(kept, s)
		}
	}
	b.subs = kept
}

func (b *Broker) publish(t string, payload []byte) {
	b.mu.RLock()
	var matched []transport.Handler
	for _, s := range b.subs {
		if topic.Match(s.filter, t) {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(t, append([]byte(nil), payload...))
	}
}

// Client implements transport.Transport against a Broker.
type Client struct {
	broker    *Broker
	connected bool
	mu        sync.Mutex
}

func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *Client) Subscribe(_ context.Context, filter string, h transport.Handler) error {
	if !c.isConnected() {
		return transport.ErrNotConnected
	}
	c.broker.subscribe(subscription{client: c, filter: filter, handler: h})
	return nil
}

func (c *Client) Publish(_ context.Context, t string, payload []byte) error {
	if !c.isConnected() {
		return transport.ErrNotConnected
	}
	c.broker.publish(t, payload)
	return nil
}

// Disconnect removes every subscription held by the client.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.broker.drop(c)
	return nil
}

func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ transport.Transport = (*Client)(nil)
