// Package lifecycle drives a demo session on both ends: the dashboard moves from
// WAITING to STARTED, each station from INPUT through WAITING to ACTIVE.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/edgeflare/pumpdemo/pkg/journal"
	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/edgeflare/pumpdemo/pkg/metrics"
	"github.com/edgeflare/pumpdemo/pkg/registry"
	"github.com/edgeflare/pumpdemo/pkg/router"
	"github.com/edgeflare/pumpdemo/pkg/session"
	"github.com/edgeflare/pumpdemo/pkg/topic"
	"github.com/edgeflare/pumpdemo/pkg/transport"
	"go.uber.org/zap"
)

var (
	ErrNoStations     = errors.New("no stations have joined")
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotOpen        = errors.New("session not open")
	ErrUnknownStation = errors.New("unknown station")
)

type DashboardState string

const (
	StateWaiting DashboardState = "WAITING"
	StateStarted DashboardState = "STARTED"
)

// Provisioner prepares broker resources for a newly joined station.
type Provisioner interface {
	Provision(ctx context.Context, sessionID, stationID string) error
}

type DashboardConfig struct {
	// SessionID is generated when empty.
	SessionID     string
	Namespace     topic.Namespace
	MobileBaseURL string
}

type options struct {
	logger      *zap.Logger
	journal     *journal.Recorder
	provisioner Provisioner
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithJournal(r *journal.Recorder) Option {
	return func(o *options) { o.journal = r }
}

// WithProvisioner provisions a queue per station, best effort.
func WithProvisioner(p Provisioner) Option {
	return func(o *options) { o.provisioner = p }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dashboard owns the session: it generates the session id, collects logins into the
// registry and subscribes to each station's channels once the station is known.
type Dashboard struct {
	t         transport.Transport
	reg       *registry.Registry
	router    *router.Dashboard
	ns        topic.Namespace
	sessionID string
	mobileURL string
	opts      options

	mu       sync.RWMutex
	state    DashboardState
	ctx      context.Context
	closed   bool
	watching map[string]bool
	wg       sync.WaitGroup
}

func NewDashboard(t transport.Transport, cfg DashboardConfig, opts ...Option) *Dashboard {
	o := buildOptions(opts)
	sid := cfg.SessionID
	if sid == "" {
		sid = session.NewSessionID()
	}
	ns := cfg.Namespace.WithDefaults()
	reg := registry.New()

	d := &Dashboard{
		t:         t,
		reg:       reg,
		ns:        ns,
		sessionID: sid,
		mobileURL: session.MobileURL(cfg.MobileBaseURL, sid),
		opts:      o,
		state:     StateWaiting,
		watching:  make(map[string]bool),
	}
	d.router = router.NewDashboard(sid, reg,
		router.WithLogger(o.logger.Named("router")),
		router.WithNamespace(ns),
		router.WithJournal(o.journal),
	)
	return d
}

// Open subscribes to the session's login channel. ctx bounds the subscriptions
// opened later for joining stations.
func (d *Dashboard) Open(ctx context.Context) error {
	if !topic.ValidLevel(d.sessionID) {
		return fmt.Errorf("%w: session %q", ErrInvalidID, d.sessionID)
	}
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	loginTopic := d.ns.LoginTopic(d.sessionID)
	if err := d.t.Subscribe(ctx, loginTopic, d.handle); err != nil {
		return fmt.Errorf("subscribe login channel: %w", err)
	}
	d.opts.logger.Info("session open",
		zap.String("sessionID", d.sessionID),
		zap.String("loginTopic", loginTopic),
		zap.String("mobileURL", d.mobileURL))
	return nil
}

func (d *Dashboard) handle(t string, payload []byte) {
	res := d.router.Dispatch(t, payload)
	if !res.NewStation {
		return
	}
	metrics.StationsRegistered.Set(float64(d.reg.Len()))

	// transports may deliver on their own callback goroutine, which must not block
	// on a subscribe round-trip. Add happens under the lock so Close cannot be waiting yet.
	d.mu.Lock()
	ctx := d.ctx
	if ctx == nil || d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		d.watch(ctx, res.StationID)
	}()
}

func (d *Dashboard) watch(ctx context.Context, stationID string) {
	filter := d.ns.StationFilter(d.sessionID, stationID)
	if err := d.t.Subscribe(ctx, filter, d.handle); err != nil {
		d.opts.logger.Error("subscribe station channels",
			zap.String("stationID", stationID), zap.String("filter", filter), zap.Error(err))
		return
	}
	d.mu.Lock()
	d.watching[stationID] = true
	d.mu.Unlock()
	d.opts.logger.Debug("watching station", zap.String("filter", filter))

	if d.opts.provisioner == nil {
		return
	}
	if err := d.opts.provisioner.Provision(ctx, d.sessionID, stationID); err != nil {
		d.opts.logger.Warn("queue provisioning failed",
			zap.String("stationID", stationID), zap.Error(err))
	}
}

// Start broadcasts the start message. Only allowed while WAITING with at least one station.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.ctx == nil:
		return ErrNotOpen
	case d.state == StateStarted:
		return ErrAlreadyStarted
	case d.reg.Len() == 0:
		return ErrNoStations
	}

	payload, err := message.Encode(message.NewStart())
	if err != nil {
		return err
	}
	if err := d.t.Publish(ctx, d.ns.StartTopic(d.sessionID), payload); err != nil {
		return fmt.Errorf("broadcast start: %w", err)
	}
	d.state = StateStarted
	d.opts.logger.Info("session started",
		zap.String("sessionID", d.sessionID), zap.Int("stations", d.reg.Len()))
	return nil
}

// StopStation sends STOP to one station's SYS channel.
func (d *Dashboard) StopStation(ctx context.Context, stationID string) error {
	if _, ok := d.reg.Get(stationID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStation, stationID)
	}
	payload, err := message.Encode(message.NewStop())
	if err != nil {
		return err
	}
	if err := d.t.Publish(ctx, d.ns.SystemTopic(d.sessionID, stationID), payload); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	d.opts.logger.Info("stop sent", zap.String("stationID", stationID))
	return nil
}

// Close stops watching newly joined stations and waits for pending station
// subscriptions. It is safe to call more than once.
func (d *Dashboard) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dashboard) State() DashboardState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// CanStart reports whether Start would be accepted.
func (d *Dashboard) CanStart() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ctx != nil && d.state == StateWaiting && d.reg.Len() > 0
}

// Watching reports whether the station's channels are subscribed.
func (d *Dashboard) Watching(stationID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.watching[stationID]
}

func (d *Dashboard) StationsLength() int          { return d.reg.Len() }
func (d *Dashboard) Stations() []registry.Station { return d.reg.List() }

func (d *Dashboard) Station(id string) (registry.Station, bool) {
	return d.reg.Get(id)
}

func (d *Dashboard) SessionID() string { return d.sessionID }
func (d *Dashboard) MobileURL() string { return d.mobileURL }
func (d *Dashboard) QRCodeURL() string { return session.QRCodeURL(d.mobileURL) }
