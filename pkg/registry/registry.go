// Package registry holds the dashboard's view of every station in a session.
//
// The transport delivers at most once, possibly duplicated and without ordering
// across stations, so each mutation is written to tolerate replay: registration is
// idempotent and fuel level is last-write-wins.
package registry

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	FullTank  = 100.0
	EmptyTank = 0.0

	StopReceivedLog = "STOP COMMAND RECEIVED!"
)

// Station is one station's display state.
type Station struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	FuelLevel float64  `json:"fuelLevel"`
	Logs      []string `json:"logs"`
}

func (s *Station) clone() Station {
	c := *s
	c.Logs = slices.Clone(s.Logs)
	if c.Logs == nil {
		c.Logs = []string{}
	}
	return c
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used to stamp synthetic log entries.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry maps station id to Station.
type Registry struct {
	stations map[string]*Station
	now      func() time.Time
	mu       sync.RWMutex
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		stations: make(map[string]*Station),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts a station with a full tank and an empty log. It reports whether
// the station is new; registering a known id changes nothing.
func (r *Registry) Register(id, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stations[id]; ok {
		return false
	}
	r.stations[id] = &Station{
		ID:        id,
		Name:      name,
		FuelLevel: FullTank,
		Logs:      []string{},
	}
	return true
}

// UpdateFuelLevel sets the fuel level of a known station, clamped into [0, 100].
// Updates for unknown stations and NaN values are dropped.
func (r *Registry) UpdateFuelLevel(id string, level float64) bool {
	if math.IsNaN(level) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stations[id]
	if !ok {
		return false
	}
	s.FuelLevel = math.Min(math.Max(level, EmptyTank), FullTank)
	return true
}

// AppendLog appends text to a known station's log.
func (r *Registry) AppendLog(id, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stations[id]
	if !ok {
		return false
	}
	s.Logs = append(s.Logs, text)
	return true
}

// MarkStopReceived records that a STOP command reached the station's channel.
// The fuel level is left alone; stopping is the station's own decision.
func (r *Registry) MarkStopReceived(id string) bool {
	return r.AppendLog(id, Stamp(r.now())+StopReceivedLog)
}

// Get returns a copy of the station.
func (r *Registry) Get(id string) (Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stations[id]
	if !ok {
		return Station{}, false
	}
	return s.clone(), true
}

// List returns a snapshot of all stations ordered by id, independent of arrival order.
func (r *Registry) List() []Station {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Station, 0, len(r.stations))
	for _, s := range r.stations {
		list = append(list, s.clone())
	}
	slices.SortFunc(list, func(a, b Station) int {
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// Len returns the number of registered stations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}

// Stamp renders the "[15:04:05] " prefix used on every log line.
func Stamp(t time.Time) string {
	return t.Format("[15:04:05] ")
}
