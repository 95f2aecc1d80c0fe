// Package pump simulates a station's fuel flow. All mutable flow state lives in a
// Simulator; the periodic timer is owned by it and is cancelled on every stop path.
package pump

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/edgeflare/pumpdemo/pkg/metrics"
	"github.com/edgeflare/pumpdemo/pkg/registry"
	"go.uber.org/zap"
)

var (
	ErrClosed      = errors.New("pump closed")
	ErrInvalidFlow = errors.New("invalid flow state")
	ErrTankEmpty   = errors.New("tank empty")
)

const (
	DefaultTickInterval = 500 * time.Millisecond
	DefaultFlowRate     = 1.0

	publishTimeout = 5 * time.Second
)

type FlowState string

const (
	FlowStop FlowState = "STOP"
	FlowSlow FlowState = "SLOW"
	FlowFast FlowState = "FAST"
)

func (f FlowState) Valid() bool {
	return f == FlowStop || f == FlowSlow || f == FlowFast
}

// FlowForAngle maps a device rotation around the z-axis, in degrees, to a flow state.
// Angles outside [0,180) leave the flow unchanged and report false.
func FlowForAngle(alpha float64) (FlowState, bool) {
	switch {
	case alpha >= 0 && alpha < 30:
		return FlowStop, true
	case alpha >= 30 && alpha < 90:
		return FlowSlow, true
	case alpha >= 90 && alpha < 180:
		return FlowFast, true
	default:
		return "", false
	}
}

// PublishFunc sends one telemetry payload for this station.
type PublishFunc func(ctx context.Context, f message.Flow) error

type Config struct {
	TickInterval time.Duration `mapstructure:"tickInterval"`
	// FlowRate is the fuel percentage drained per decrement.
	FlowRate float64 `mapstructure:"flowRate"`
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.FlowRate <= 0 {
		c.FlowRate = DefaultFlowRate
	}
	return c
}

// Simulator drains a local tank while pumping. SLOW drains on every second tick,
// FAST on every tick. Each decrement is published and logged.
type Simulator struct {
	cfg     Config
	publish PublishFunc
	logbook *Logbook
	logger  *zap.Logger

	mu       sync.Mutex
	state    FlowState
	fuel     float64
	halfTick bool
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

func New(cfg Config, publish PublishFunc, logbook *Logbook, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if logbook == nil {
		logbook = NewLogbook(nil)
	}
	return &Simulator{
		cfg:     cfg.withDefaults(),
		publish: publish,
		logbook: logbook,
		logger:  logger,
		state:   FlowStop,
		fuel:    registry.FullTank,
	}
}

// Start begins pumping at the given rate. The timer stops when ctx is done, on
// Stop, SetFlow(FlowStop), Close, or when the tank runs empty.
func (s *Simulator) Start(ctx context.Context, state FlowState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFlow, state)
	}
	if state == FlowStop {
		s.Stop()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case s.fuel <= registry.EmptyTank:
		return ErrTankEmpty
	}

	s.state = state
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.gen++
	s.cancel = cancel
	s.done = make(chan struct{})
	s.halfTick = false
	go s.run(ctx, s.gen, s.done)

	s.logger.Debug("pump started", zap.String("flow", string(state)))
	s.logbook.Add(fmt.Sprintf("Pump started (%s)", state))
	return nil
}

// SetFlow changes the rate of a running pump; FlowStop stops it. Returns false when
// the pump is idle and the state was not applied.
func (s *Simulator) SetFlow(state FlowState) bool {
	if state == FlowStop {
		return s.Stop()
	}
	if !state.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	if s.state != state {
		s.state = state
		s.logbook.Add(fmt.Sprintf("Flow rate set to %s", state))
	}
	return true
}

// Stop cancels the flow timer. It reports whether the pump was running.
func (s *Simulator) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked("Pump stopped")
}

// Close stops the pump, waits for the timer goroutine, and rejects further starts.
func (s *Simulator) Close() {
	s.mu.Lock()
	s.closed = true
	done := s.done
	s.stopLocked("Pump stopped")
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Simulator) State() FlowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulator) Fuel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fuel
}

func (s *Simulator) Logbook() *Logbook {
	return s.logbook
}

func (s *Simulator) stopLocked(reason string) bool {
	s.state = FlowStop
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.logbook.Add(reason)
	s.logger.Debug("pump stopped", zap.String("reason", reason))
	return true
}

func (s *Simulator) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.gen == gen && s.cancel != nil {
				s.stopLocked("Pump stopped")
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.tick(ctx, gen)
		}
	}
}

func (s *Simulator) tick(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	if s.state == FlowSlow {
		s.halfTick = !s.halfTick
		if s.halfTick {
			s.mu.Unlock()
			return
		}
	}

	prev := s.fuel
	next := max(prev-s.cfg.FlowRate, registry.EmptyTank)
	s.fuel = next
	line := s.logbook.Add(fmt.Sprintf("Decremented tank from %g to %g", prev, next))
	if next <= registry.EmptyTank {
		s.stopLocked("Tank empty")
	}
	s.mu.Unlock()

	if s.publish == nil {
		return
	}
	// the final reading must go out even though reaching empty cancelled ctx
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publish(pctx, message.NewFlow(next, line)); err != nil {
		metrics.TelemetryPublished.WithLabelValues("error").Inc()
		s.logger.Warn("publish flow telemetry", zap.Float64("fuelLevel", next), zap.Error(err))
		return
	}
	metrics.TelemetryPublished.WithLabelValues("ok").Inc()
}

// Logbook is an append-only list of timestamped lines.
type Logbook struct {
	mu    sync.Mutex
	now   func() time.Time
	lines []string
}

// NewLogbook uses time.Now when now is nil.
func NewLogbook(now func() time.Time) *Logbook {
	if now == nil {
		now = time.Now
	}
	return &Logbook{now: now}
}

// Add stamps and appends text, returning the stored line.
func (l *Logbook) Add(text string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := registry.Stamp(l.now()) + text
	l.lines = append(l.lines, line)
	return line
}

func (l *Logbook) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}
