package pump

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	flows []message.Flow
	err   error
}

func (r *recorder) publish(_ context.Context, f message.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows = append(r.flows, f)
	return r.err
}

func (r *recorder) levels() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, 0, len(r.flows))
	for _, f := range r.flows {
		out = append(out, f.FuelLevel)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 6, 10, 2, 11, 0, time.UTC)
}

// armed returns a simulator whose tick can be driven by hand.
func armed(state FlowState, fuel float64, rec *recorder) *Simulator {
	s := New(Config{FlowRate: 1}, rec.publish, NewLogbook(fixedClock), nil)
	s.gen = 1
	s.cancel = func() {}
	s.state = state
	s.fuel = fuel
	return s
}

func TestTickRates(t *testing.T) {
	tests := []struct {
		state FlowState
		ticks int
		want  float64
	}{
		{FlowSlow, 4, 98},
		{FlowSlow, 1, 100},
		{FlowFast, 4, 96},
	}

	for _, tt := range tests {
		rec := &recorder{}
		s := armed(tt.state, 100, rec)
		for i := 0; i < tt.ticks; i++ {
			s.tick(context.Background(), 1)
		}
		assert.Equal(t, tt.want, s.Fuel(), "%s x%d", tt.state, tt.ticks)
		assert.Equal(t, int(100-tt.want), rec.count())
	}
}

func TestTickPublishesLogLine(t *testing.T) {
	rec := &recorder{}
	s := armed(FlowFast, 100, rec)
	s.tick(context.Background(), 1)

	require.Len(t, rec.flows, 1)
	assert.Equal(t, 99.0, rec.flows[0].FuelLevel)
	assert.Equal(t, "[10:02:11] Decremented tank from 100 to 99", rec.flows[0].Log)
	assert.Equal(t, []string{"[10:02:11] Decremented tank from 100 to 99"}, s.Logbook().Lines())
}

func TestTickStopsAtEmpty(t *testing.T) {
	rec := &recorder{}
	s := armed(FlowFast, 1.5, rec)

	s.tick(context.Background(), 1)
	s.tick(context.Background(), 1)
	s.tick(context.Background(), 1)

	assert.Equal(t, []float64{0.5, 0}, rec.levels())
	assert.Equal(t, 0.0, s.Fuel())
	assert.False(t, s.Running())
	assert.Equal(t, FlowStop, s.State())

	assert.ErrorIs(t, s.Start(context.Background(), FlowFast), ErrTankEmpty)
}

func TestTickIgnoresStaleGeneration(t *testing.T) {
	rec := &recorder{}
	s := armed(FlowFast, 100, rec)
	s.tick(context.Background(), 7)
	assert.Zero(t, rec.count())
}

func TestPublishErrorKeepsPumping(t *testing.T) {
	rec := &recorder{err: errors.New("broker gone")}
	s := armed(FlowFast, 100, rec)
	s.tick(context.Background(), 1)
	s.tick(context.Background(), 1)
	assert.Equal(t, 98.0, s.Fuel())
	assert.True(t, s.Running())
}

func TestStartAndStop(t *testing.T) {
	rec := &recorder{}
	s := New(Config{TickInterval: time.Millisecond}, rec.publish, nil, nil)

	require.NoError(t, s.Start(context.Background(), FlowFast))
	assert.True(t, s.Running())
	assert.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)

	assert.True(t, s.Stop())
	assert.False(t, s.Running())
	s.Close()

	n := rec.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, rec.count(), "no telemetry after stop")

	levels := rec.levels()
	for i := 1; i < len(levels); i++ {
		assert.Less(t, levels[i], levels[i-1])
	}
	assert.ErrorIs(t, s.Start(context.Background(), FlowSlow), ErrClosed)
}

func TestContextCancelStopsPump(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{TickInterval: time.Millisecond}, nil, nil, nil)

	require.NoError(t, s.Start(ctx, FlowSlow))
	cancel()
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, time.Millisecond)
	s.Close()
}

func TestSetFlow(t *testing.T) {
	s := New(Config{TickInterval: time.Hour}, nil, NewLogbook(fixedClock), nil)
	defer s.Close()

	assert.False(t, s.SetFlow(FlowFast), "idle pump ignores rate changes")
	assert.False(t, s.SetFlow("TURBO"))

	require.NoError(t, s.Start(context.Background(), FlowSlow))
	assert.True(t, s.SetFlow(FlowFast))
	assert.Equal(t, FlowFast, s.State())
	assert.Contains(t, s.Logbook().Lines(), "[10:02:11] Flow rate set to FAST")

	assert.True(t, s.SetFlow(FlowStop))
	assert.False(t, s.Running())
	assert.False(t, s.Stop(), "already stopped")
}

func TestStartInvalidFlow(t *testing.T) {
	s := New(Config{}, nil, nil, nil)
	assert.ErrorIs(t, s.Start(context.Background(), "TURBO"), ErrInvalidFlow)
	assert.NoError(t, s.Start(context.Background(), FlowStop))
	assert.False(t, s.Running())
}

func TestFlowForAngle(t *testing.T) {
	tests := []struct {
		alpha float64
		want  FlowState
		ok    bool
	}{
		{0, FlowStop, true},
		{29.9, FlowStop, true},
		{30, FlowSlow, true},
		{89, FlowSlow, true},
		{90, FlowFast, true},
		{179, FlowFast, true},
		{180, "", false},
		{-5, "", false},
	}

	for _, tt := range tests {
		got, ok := FlowForAngle(tt.alpha)
		assert.Equal(t, tt.ok, ok, tt.alpha)
		assert.Equal(t, tt.want, got, tt.alpha)
	}
}
