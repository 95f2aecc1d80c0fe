// Package mqtt implements transport.Transport over an MQTT broker such as
// Solace PubSub+, using the Eclipse Paho client.
package mqtt

import (
	"context"
	"fmt"
	"os"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/pumpdemo/pkg/transport"
	"go.uber.org/zap"
)

// Client wraps a Paho client. Subscriptions are remembered and restored after an
// automatic reconnect, since clean sessions drop them broker-side.
type Client struct {
	opts   *mqtt.ClientOptions
	client mqtt.Client
	logger *zap.Logger
	qos    byte

	subs map[string]transport.Handler
	mu   sync.Mutex
}

// init ensures that the logger is not nil
func (c *Client) init() {
	if c.logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create default logger: %v\n", err)
			c.logger = zap.NewNop()
		} else {
			c.logger = logger
		}
	}
	c.subs = make(map[string]transport.Handler)
}

// NewClient creates a client from the given options. It does not connect.
func NewClient(opts ClientOptions, logger ...*zap.Logger) (*Client, error) {
	pahoOpts, err := convertToPahoOptions(&opts)
	if err != nil {
		return nil, err
	}

	c := &Client{opts: pahoOpts, qos: opts.QoS}
	if len(logger) > 0 {
		c.logger = logger[0]
	}
	c.init()

	pahoOpts.SetOnConnectHandler(c.onConnect)
	pahoOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("connection to MQTT broker lost", zap.Error(err))
	})
	return c, nil
}

// Connect establishes a connection to the MQTT broker.
func (c *Client) Connect(ctx context.Context) error {
	c.client = mqtt.NewClient(c.opts)
	if err := wait(ctx, c.client.Connect()); err != nil {
		return fmt.Errorf("broker connection error: %w", err)
	}
	c.logger.Info("connected to MQTT broker",
		zap.Strings("brokers", getBrokerStrings(c.opts)),
		zap.String("clientID", c.opts.ClientID))
	return nil
}

// Publish sends payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.client == nil {
		return transport.ErrNotConnected
	}
	if err := wait(ctx, c.client.Publish(topic, c.qos, false, payload)); err != nil {
		c.logger.Error("publish error", zap.Error(err), zap.String("topic", topic))
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.logger.Debug("message published", zap.String("topic", topic))
	return nil
}

// Subscribe registers h for messages matching filter.
func (c *Client) Subscribe(ctx context.Context, filter string, h transport.Handler) error {
	if c.client == nil {
		return transport.ErrNotConnected
	}
	if err := wait(ctx, c.client.Subscribe(filter, c.qos, wrap(h))); err != nil {
		c.logger.Error("subscribe error", zap.Error(err), zap.String("filter", filter))
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	c.mu.Lock()
	c.subs[filter] = h
	c.mu.Unlock()

	c.logger.Debug("subscribed", zap.String("filter", filter))
	return nil
}

// Disconnect closes the connection to the MQTT broker.
func (c *Client) Disconnect() error {
	if c.client == nil {
		return nil
	}
	c.client.Disconnect(250)
	c.logger.Info("disconnected from MQTT broker")
	return nil
}

// onConnect restores subscriptions after a reconnect.
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]transport.Handler, len(c.subs))
	for f, h := range c.subs {
		subs[f] = h
	}
	c.mu.Unlock()

	for filter, h := range subs {
		token := client.Subscribe(filter, c.qos, wrap(h))
		// paho invokes this on its own goroutine; blocking on the token here is allowed
		if token.Wait() && token.Error() != nil {
			c.logger.Error("resubscribe error", zap.Error(token.Error()), zap.String("filter", filter))
		}
	}
	if len(subs) > 0 {
		c.logger.Info("subscriptions restored", zap.Int("count", len(subs)))
	}
}

func wrap(h transport.Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ transport.Transport = (*Client)(nil)
