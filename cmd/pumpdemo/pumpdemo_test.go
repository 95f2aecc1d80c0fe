package pumpdemo

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/config"
	"github.com/edgeflare/pumpdemo/pkg/lifecycle"
	"github.com/edgeflare/pumpdemo/pkg/pump"
	"github.com/edgeflare/pumpdemo/pkg/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) {
	t.Helper()
	cfg = config.Default()
	cfg.Broker.Transport = config.TransportMemory
	cfg.Station.TickInterval = time.Millisecond
	cfg.Dashboard.ListenAddr = "127.0.0.1:0"
	logger = zap.NewNop()
	dashboardFlags.autoStart = 0
	dashboardFlags.listenAddr = ""
}

func TestDashboardAndStation(t *testing.T) {
	setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := memory.NewBroker()

	opened := make(chan *lifecycle.Dashboard, 1)
	dashDone := make(chan error, 1)
	go func() { dashDone <- runDashboard(ctx, mem, func(d *lifecycle.Dashboard) { opened <- d }) }()

	var d *lifecycle.Dashboard
	select {
	case d = <-opened:
	case err := <-dashDone:
		t.Fatalf("dashboard exited: %v", err)
	}

	stationDone := make(chan error, 1)
	go func() { stationDone <- runStation(ctx, mem, d.SessionID(), "u1", "Kim", pump.FlowFast) }()

	require.Eventually(t, func() bool { return d.Watching("u1") }, time.Second, time.Millisecond)
	require.NoError(t, d.Start(ctx))
	require.Eventually(t, func() bool {
		st, _ := d.Station("u1")
		return st.FuelLevel < 100
	}, 2*time.Second, time.Millisecond)

	cancel()
	for _, done := range []chan error{stationDone, dashDone} {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("command did not stop")
		}
	}
}

func TestConnectRejectsMemoryOutsideDemo(t *testing.T) {
	setup(t)
	_, err := connect(context.Background(), cfg.Broker, "station", nil)
	assert.ErrorIs(t, err, config.ErrUnknownTransport)
}

func TestWaitFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, waitFor(ctx, func() bool { return false }), context.Canceled)
	assert.NoError(t, waitFor(context.Background(), func() bool { return true }))
}

func TestCheckID(t *testing.T) {
	assert.NoError(t, checkID("id", "pump-1"))
	for _, v := range []string{"", "pump/1", "+", "#"} {
		err := checkID("id", v)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidID, v)
	}
}

func TestAutoStartTakesStationCount(t *testing.T) {
	f := dashboardCmd.Flags().Lookup("auto-start")
	require.NotNil(t, f)
	assert.Equal(t, "int", f.Value.Type())
	assert.Equal(t, "0", f.DefValue)
}
