package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/edgeflare/pumpdemo/pkg/pump"
	"github.com/edgeflare/pumpdemo/pkg/registry"
	"github.com/edgeflare/pumpdemo/pkg/router"
	"github.com/edgeflare/pumpdemo/pkg/session"
	"github.com/edgeflare/pumpdemo/pkg/topic"
	"github.com/edgeflare/pumpdemo/pkg/transport"
	"go.uber.org/zap"
)

var (
	ErrEmptyName        = errors.New("station name is required")
	ErrAlreadySubmitted = errors.New("station already submitted")
	ErrNotActive        = errors.New("station is not active")
	ErrNoSession        = errors.New("session id is required")
	// ErrInvalidID is returned for a session or station id that is not one plain topic level.
	ErrInvalidID        = errors.New("id must be a single topic level without wildcards")
)

type StationState string

const (
	StationInput   StationState = "INPUT"
	// StationWaiting is the state between login and the start broadcast.
	StationWaiting StationState = "WAITING"
	StationActive  StationState = "ACTIVE"
)

type StationConfig struct {
	SessionID string
	// StationID is generated when empty.
	StationID string
	Namespace topic.Namespace
	Pump      pump.Config
}

// Station is one simulated pump. It waits for the start broadcast with no timeout;
// a dashboard that never starts leaves it WAITING.
type Station struct {
	t         transport.Transport
	ns        topic.Namespace
	sessionID string
	id        string
	router    *router.Station
	pump      *pump.Simulator
	logbook   *pump.Logbook
	logger    *zap.Logger

	mu        sync.RWMutex
	state     StationState
	name      string
	activated chan struct{}
}

func NewStation(t transport.Transport, cfg StationConfig, opts ...Option) (*Station, error) {
	if cfg.SessionID == "" {
		return nil, ErrNoSession
	}
	if !topic.ValidLevel(cfg.SessionID) {
		return nil, fmt.Errorf("%w: session %q", ErrInvalidID, cfg.SessionID)
	}
	o := buildOptions(opts)
	id := cfg.StationID
	if id == "" {
		id = session.NewStationID()
	}
	if !topic.ValidLevel(id) {
		return nil, fmt.Errorf("%w: station %q", ErrInvalidID, id)
	}

	s := &Station{
		t:         t,
		ns:        cfg.Namespace.WithDefaults(),
		sessionID: cfg.SessionID,
		id:        id,
		logbook:   pump.NewLogbook(nil),
		logger:    o.logger.With(zap.String("stationID", id)),
		state:     StationInput,
		activated: make(chan struct{}),
	}
	s.pump = pump.New(cfg.Pump, s.publishFlow, s.logbook, s.logger.Named("pump"))
	s.router = router.NewStation(cfg.SessionID, id, s,
		router.WithLogger(s.logger.Named("router")),
		router.WithNamespace(s.ns),
		router.WithJournal(o.journal),
	)
	return s, nil
}

// Submit subscribes to the start broadcast and this station's SYS channel, then
// announces the station on the login channel.
func (s *Station) Submit(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StationInput {
		return ErrAlreadySubmitted
	}

	for _, filter := range []string{
		s.ns.StartTopic(s.sessionID),
		s.ns.SystemTopic(s.sessionID, s.id),
	} {
		if err := s.t.Subscribe(ctx, filter, s.router.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", filter, err)
		}
	}

	payload, err := message.Encode(message.NewLogin(name, s.id))
	if err != nil {
		return err
	}
	if err := s.t.Publish(ctx, s.ns.LoginTopic(s.sessionID), payload); err != nil {
		return fmt.Errorf("publish login: %w", err)
	}

	s.name = name
	s.state = StationWaiting
	s.logger.Info("joined session", zap.String("sessionID", s.sessionID), zap.String("name", name))
	return nil
}

// Activate moves a waiting station to ACTIVE. Repeated start broadcasts are ignored.
func (s *Station) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StationWaiting {
		return
	}
	s.state = StationActive
	close(s.activated)
	s.logbook.Add("Session started")
	s.logger.Info("station active")
}

// StopReceived cancels the flow timer and logs the command.
func (s *Station) StopReceived() {
	s.pump.Stop()
	s.logbook.Add(registry.StopReceivedLog)
	s.logger.Info("stop command received")
}

// StartPump begins pumping at the given rate once the station is active.
func (s *Station) StartPump(ctx context.Context, flow pump.FlowState) error {
	if s.State() != StationActive {
		return ErrNotActive
	}
	return s.pump.Start(ctx, flow)
}

// SetFlow changes the rate of a running pump; FlowStop stops it.
func (s *Station) SetFlow(flow pump.FlowState) bool {
	return s.pump.SetFlow(flow)
}

// Orient feeds a device rotation angle into the pump.
func (s *Station) Orient(alpha float64) bool {
	flow, ok := pump.FlowForAngle(alpha)
	if !ok {
		return false
	}
	return s.pump.SetFlow(flow)
}

func (s *Station) StopPump() bool {
	return s.pump.Stop()
}

// Close cancels the flow timer and waits for it to exit.
func (s *Station) Close() {
	s.pump.Close()
}

func (s *Station) publishFlow(ctx context.Context, f message.Flow) error {
	payload, err := message.Encode(f)
	if err != nil {
		return err
	}
	return s.t.Publish(ctx, s.ns.FlowTopic(s.sessionID, s.id), payload)
}

// Activated is closed when the station becomes ACTIVE.
func (s *Station) Activated() <-chan struct{} {
	return s.activated
}

func (s *Station) State() StationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Station) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Station) ID() string           { return s.id }
func (s *Station) SessionID() string    { return s.sessionID }
func (s *Station) Fuel() float64        { return s.pump.Fuel() }
func (s *Station) Flow() pump.FlowState { return s.pump.State() }
func (s *Station) Logs() []string       { return s.logbook.Lines() }
func (s *Station) Pumping() bool        { return s.pump.Running() }
