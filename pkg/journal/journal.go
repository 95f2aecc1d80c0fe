// Package journal records an append-only trail of applied protocol messages to one
// or more sinks. The trail is never read back to rebuild state.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrUnknownSink = errors.New("unknown journal sink")
	ErrClosed      = errors.New("journal closed")
)

// Predefined sinks
const (
	SinkLog      = "log"
	SinkNATS     = "nats"
	SinkPostgres = "postgres"
)

// Entry is one applied message.
type Entry struct {
	At        time.Time       `json:"at"`
	Role      string          `json:"role"`
	SessionID string          `json:"sessionId"`
	StationID string          `json:"stationId,omitempty"`
	Kind      string          `json:"kind"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
}

// A Sink persists journal entries.
type Sink interface {
	// Open prepares the sink with its section of the journal config.
	Open(ctx context.Context, cfg Config, logger *zap.Logger) error
	Write(ctx context.Context, e Entry) error
	Close() error
}

// Factory returns a fresh, unopened sink.
type Factory func() Sink

var (
	sinksMu sync.RWMutex
	sinks   = map[string]Factory{}
)

// RegisterSink makes a sink available by name.
func RegisterSink(name string, f Factory) {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	sinks[name] = f
}

// Sinks lists registered sink names.
func Sinks() []string {
	sinksMu.RLock()
	defer sinksMu.RUnlock()
	names := make([]string, 0, len(sinks))
	for n := range sinks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config selects and configures sinks.
type Config struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"`
	// Buffer is the number of entries queued before new ones are dropped.
	Buffer       int           `mapstructure:"buffer"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	NATS         NATSConfig    `mapstructure:"nats"`
	Postgres     PGConfig      `mapstructure:"postgres"`
}

// NamedSink pairs a sink with the name used in logs and metrics.
type NamedSink struct {
	Name string
	Sink
}

// Recorder queues entries and writes them to every sink from one goroutine,
// so a slow sink never blocks message dispatch.
type Recorder struct {
	sinks   []NamedSink
	ch      chan Entry
	done    chan struct{}
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// New opens the configured sinks and starts the writer. A disabled config yields
// a nil Recorder, which is safe to use.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	names := cfg.Sinks
	if len(names) == 0 {
		names = []string{SinkLog}
	}

	opened := make([]NamedSink, 0, len(names))
	for _, name := range names {
		sinksMu.RLock()
		f, ok := sinks[name]
		sinksMu.RUnlock()
		if !ok {
			closeAll(opened, logger)
			return nil, fmt.Errorf("%w: %s", ErrUnknownSink, name)
		}
		s := f()
		if err := s.Open(ctx, cfg, logger.Named(name)); err != nil {
			closeAll(opened, logger)
			return nil, fmt.Errorf("open journal sink %s: %w", name, err)
		}
		opened = append(opened, NamedSink{Name: name, Sink: s})
	}

	return NewRecorder(cfg, logger, opened...), nil
}

// NewRecorder starts a writer over already-opened sinks.
func NewRecorder(cfg Config, logger *zap.Logger, sinks ...NamedSink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	r := &Recorder{
		sinks:   sinks,
		ch:      make(chan Entry, cfg.Buffer),
		done:    make(chan struct{}),
		timeout: cfg.WriteTimeout,
		logger:  logger,
	}
	go r.run()
	return r
}

// Record queues e without blocking. Entries are dropped when the queue is full.
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- e:
	default:
		metrics.JournalEntries.WithLabelValues("queue", "dropped").Inc()
		r.logger.Warn("journal queue is full, dropping entry", zap.String("topic", e.Topic))
	}
}

// Close flushes queued entries and closes every sink.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	return closeAll(r.sinks, r.logger)
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			err := s.Write(ctx, e)
			cancel()
			if err != nil {
				metrics.JournalEntries.WithLabelValues(s.Name, "error").Inc()
				r.logger.Error("journal write failed", zap.String("sink", s.Name), zap.Error(err))
				continue
			}
			metrics.JournalEntries.WithLabelValues(s.Name, "written").Inc()
		}
	}
}

func closeAll(sinks []NamedSink, logger *zap.Logger) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Warn("close journal sink", zap.String("sink", s.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
