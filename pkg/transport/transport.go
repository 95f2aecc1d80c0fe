// Package transport abstracts the pub/sub broker so session logic can run over MQTT,
// NATS, or an in-process broker.
//
// Topics are "/"-separated levels. Subscription filters use MQTT wildcards:
// "+" for one level and a trailing "#" for any number of levels.
package transport

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrClosed       = errors.New("transport closed")
)

// Handler receives every message delivered on a matching subscription.
// Handlers may run on transport-owned goroutines.
type Handler func(topic string, payload []byte)

// Transport is the capability set the session logic consumes.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, filter string, h Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Disconnect() error
}
