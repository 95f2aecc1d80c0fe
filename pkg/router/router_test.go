package router

import (
	"fmt"
	"testing"

	"github.com/edgeflare/pumpdemo/internal/testutil"
	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/edgeflare/pumpdemo/pkg/registry"
	"github.com/edgeflare/pumpdemo/pkg/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// spyRegistry records every call and reports stations as known.
type spyRegistry struct {
	calls []string
	known bool
}

func (s *spyRegistry) Register(id, name string) bool {
	s.calls = append(s.calls, fmt.Sprintf("Register(%s,%s)", id, name))
	return true
}

func (s *spyRegistry) UpdateFuelLevel(id string, level float64) bool {
	s.calls = append(s.calls, fmt.Sprintf("UpdateFuelLevel(%s,%v)", id, level))
	return s.known
}

func (s *spyRegistry) AppendLog(id, text string) bool {
	s.calls = append(s.calls, fmt.Sprintf("AppendLog(%s,%s)", id, text))
	return s.known
}

func (s *spyRegistry) MarkStopReceived(id string) bool {
	s.calls = append(s.calls, fmt.Sprintf("MarkStopReceived(%s)", id))
	return s.known
}

func TestDashboardTelemetryCallsExactlyOneUpdate(t *testing.T) {
	spy := &spyRegistry{known: true}
	d := NewDashboard("s1", spy)

	res := d.Dispatch("s1/st42/flow", []byte(`{"fuelLevel":37}`))

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"UpdateFuelLevel(st42,37)"}, spy.calls)
	assert.Equal(t, message.KindTelemetry, res.Kind)
	assert.True(t, res.Applied)
}

func TestDashboardTelemetryWithLog(t *testing.T) {
	spy := &spyRegistry{known: true}
	d := NewDashboard("s1", spy)

	payload, err := testutil.Fixture("flow.json")
	require.NoError(t, err)

	res := d.Dispatch("s1/st42/flow", payload)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{
		"UpdateFuelLevel(st42,37)",
		"AppendLog(st42,[10:02:11] Flow rate set to SLOW)",
	}, spy.calls)
}

func TestDashboardLogin(t *testing.T) {
	reg := registry.New()
	d := NewDashboard("a1b2c3", reg)

	payload, err := testutil.Fixture("login.json")
	require.NoError(t, err)

	res := d.Dispatch("a1b2c3/login", payload)
	require.NoError(t, res.Err)
	assert.True(t, res.NewStation)
	assert.Equal(t, "4f1c2e30-0b7d-11ef-9262-0242ac120002", res.StationID)

	st, ok := reg.Get("4f1c2e30-0b7d-11ef-9262-0242ac120002")
	require.True(t, ok)
	assert.Equal(t, "Kim", st.Name)
	assert.Equal(t, float64(registry.FullTank), st.FuelLevel)

	// a repeated login is benign and does not register twice
	res = d.Dispatch("a1b2c3/login", payload)
	require.NoError(t, res.Err)
	assert.False(t, res.NewStation)
	assert.Equal(t, 1, reg.Len())
}

func TestDashboardRejectsLoginIDOutsideOneLevel(t *testing.T) {
	for _, id := range []string{"+", "#", "a/b", "u1/#"} {
		t.Run(id, func(t *testing.T) {
			reg := registry.New()
			reg.Register("u1", "Kim")
			d := NewDashboard("s1", reg)

			res := d.Dispatch("s1/login", []byte(`{"name":"Eve","id":"`+id+`"}`))
			assert.ErrorIs(t, res.Err, ErrInvalidTopic)
			assert.False(t, res.NewStation)
			assert.Equal(t, 1, reg.Len())

			// telemetry for the real station is applied once
			require.NoError(t, d.Dispatch("s1/u1/flow", []byte(`{"fuelLevel":99,"log":"one line"}`)).Err)
			st, _ := reg.Get("u1")
			assert.Equal(t, []string{"one line"}, st.Logs)
		})
	}
}

func TestDashboardStop(t *testing.T) {
	reg := registry.New()
	reg.Register("u1", "Kim")
	d := NewDashboard("s1", reg)

	res := d.Dispatch("s1/u1/SYS", []byte(`{"command":"STOP"}`))
	require.NoError(t, res.Err)
	assert.Equal(t, message.KindCommand, res.Kind)

	st, _ := reg.Get("u1")
	require.Len(t, st.Logs, 1)
	assert.Contains(t, st.Logs[0], registry.StopReceivedLog)
}

func TestDashboardDrops(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		reason  error
	}{
		{"malformed", "s1/u1/flow", `not json`, ErrMalformed},
		{"array payload", "s1/u1/flow", `[1,2]`, ErrMalformed},
		{"unrecognized shape", "s1/u1/flow", `{"hello":"world"}`, ErrUnrecognized},
		{"foreign session", "s2/u1/flow", `{"fuelLevel":10}`, ErrForeignSession},
		{"bad topic", "s1", `{"fuelLevel":10}`, ErrInvalidTopic},
		{"login on station channel", "s1/u1/flow", `{"name":"Kim","id":"u1"}`, ErrUnrecognized},
		{"stop on session channel", "s1/login", `{"command":"STOP"}`, ErrUnrecognized},
		{"unknown station", "s1/ghost/flow", `{"fuelLevel":10}`, ErrUnknownStation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New()
			reg.Register("u1", "Kim")
			d := NewDashboard("s1", reg)

			res := d.Dispatch(tt.topic, []byte(tt.payload))
			assert.ErrorIs(t, res.Err, tt.reason)
			assert.False(t, res.Applied)

			st, _ := reg.Get("u1")
			assert.Equal(t, float64(registry.FullTank), st.FuelLevel)
			assert.Empty(t, st.Logs)
		})
	}
}

func TestDashboardLogsDrops(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := NewDashboard("s1", registry.New(), WithLogger(zap.New(core)))

	d.Handle("s1/u1/flow", []byte(`{"fuelLevel":`))

	entries := logs.FilterMessage("message dropped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "malformed_payload", entries[0].ContextMap()["reason"])
}

func TestDashboardCustomNamespace(t *testing.T) {
	reg := registry.New()
	d := NewDashboard("s1", reg, WithNamespace(topic.Namespace{Login: "join"}))

	res := d.Dispatch("s1/login", []byte(`{"name":"Kim","id":"u1"}`))
	assert.ErrorIs(t, res.Err, ErrUnrecognized)

	res = d.Dispatch("s1/join", []byte(`{"name":"Kim","id":"u1"}`))
	require.NoError(t, res.Err)
	assert.Equal(t, 1, reg.Len())
}

type panicRegistry struct{ spyRegistry }

func (p *panicRegistry) UpdateFuelLevel(string, float64) bool { panic("boom") }

func TestDashboardRecoversFromPanic(t *testing.T) {
	d := NewDashboard("s1", &panicRegistry{})

	var res Result
	assert.NotPanics(t, func() {
		res = d.Dispatch("s1/u1/flow", []byte(`{"fuelLevel":1}`))
	})
	assert.ErrorIs(t, res.Err, errPanic)
}

type stationSpy struct {
	activated, stopped int
}

func (s *stationSpy) Activate()     { s.activated++ }
func (s *stationSpy) StopReceived() { s.stopped++ }

func TestStationDispatch(t *testing.T) {
	spy := &stationSpy{}
	s := NewStation("s1", "u1", spy)

	res := s.Dispatch("s1/start", []byte(`{"start":true}`))
	require.NoError(t, res.Err)
	assert.Equal(t, message.KindStart, res.Kind)
	assert.Equal(t, 1, spy.activated)

	res = s.Dispatch("s1/u1/SYS", []byte(`{"command":"STOP"}`))
	require.NoError(t, res.Err)
	assert.Equal(t, 1, spy.stopped)
}

func TestStationIgnoresOtherTraffic(t *testing.T) {
	spy := &stationSpy{}
	s := NewStation("s1", "u1", spy)

	for _, tc := range []struct{ topic, payload string }{
		{"s1/start", `{"start":false}`},
		{"s1/u2/SYS", `{"command":"STOP"}`},
		{"s1/u1/SYS", `{"command":"GO"}`},
		{"s2/start", `{"start":true}`},
		{"s1/u1/flow", `{"fuelLevel":3}`},
		{"s1/start", `garbage`},
	} {
		res := s.Dispatch(tc.topic, []byte(tc.payload))
		assert.Error(t, res.Err, tc.topic)
	}
	assert.Zero(t, spy.activated)
	assert.Zero(t, spy.stopped)
}
