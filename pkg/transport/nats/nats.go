// Package nats implements transport.Transport over core NATS.
//
// Topic levels map onto subject tokens: "a/b/c" is published as "a.b.c", and the
// MQTT wildcards "+" and "#" become "*" and ">".
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/transport"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var errInvalidLevel = errors.New("topic level contains a NATS token separator or wildcard")

// Config represents NATS configuration
type Config struct {
	Servers  []string `mapstructure:"servers" json:"servers"`
	Username string   `mapstructure:"username" json:"username,omitempty"`
	Password string   `mapstructure:"password" json:"password,omitempty"`
	Name     string   `mapstructure:"name" json:"name,omitempty"`
	TLS      struct {
		Enabled  bool   `mapstructure:"enabled" json:"enabled"`
		CertFile string `mapstructure:"certFile" json:"certFile,omitempty"`
		KeyFile  string `mapstructure:"keyFile" json:"keyFile,omitempty"`
		CAFile   string `mapstructure:"caFile" json:"caFile,omitempty"`
	} `mapstructure:"tls" json:"tls,omitempty"`
}

// Client is a NATS-backed transport.
type Client struct {
	cfg    Config
	nc     *nats.Conn
	subs   []*nats.Subscription
	logger *zap.Logger
	mu     sync.Mutex
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}
	return &Client{cfg: cfg, logger: logger}
}

// Connect dials the configured servers as one cluster URL list.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	nc, err := nats.Connect(strings.Join(c.cfg.Servers, ","), defaultOptions(c.cfg, c.logger)...)
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}

	c.mu.Lock()
	c.nc = nc
	c.mu.Unlock()
	c.logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	nc, err := c.conn()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, err := Subject(topic)
	if err != nil {
		return err
	}
	if err := nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, filter string, h transport.Handler) error {
	nc, err := c.conn()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, err := Subject(filter)
	if err != nil {
		return err
	}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		h(Topic(msg.Subject), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Disconnect drains subscriptions and closes the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return nil
	}
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Debug("unsubscribe", zap.Error(err))
		}
	}
	c.subs = nil
	c.nc.Close()
	c.nc = nil
	return nil
}

func (c *Client) conn() (*nats.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return nil, transport.ErrNotConnected
	}
	return c.nc, nil
}

// Subject converts a "/"-separated topic or filter into a NATS subject.
func Subject(topic string) (string, error) {
	levels := strings.Split(strings.Trim(topic, "/"), "/")
	for i, l := range levels {
		switch {
		case l == "+":
			levels[i] = "*"
		case l == "#" && i == len(levels)-1:
			levels[i] = ">"
		case l == "" || strings.ContainsAny(l, ".*>#+ \t"):
			return "", fmt.Errorf("%w: %q in %q", errInvalidLevel, l, topic)
		}
	}
	return strings.Join(levels, "."), nil
}

// Topic converts a concrete NATS subject back into a topic.
func Topic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

func defaultOptions(c Config, logger *zap.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	if c.Name != "" {
		opts = append(opts, nats.Name(c.Name))
	}
	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}

var _ transport.Transport = (*Client)(nil)
