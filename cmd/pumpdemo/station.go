package pumpdemo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/lifecycle"
	"github.com/edgeflare/pumpdemo/pkg/pump"
	"github.com/edgeflare/pumpdemo/pkg/session"
	"github.com/edgeflare/pumpdemo/pkg/topic"
	"github.com/edgeflare/pumpdemo/pkg/transport/memory"
	"github.com/edgeflare/pumpdemo/pkg/util/rand"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var stationFlags struct {
	session string
	joinURL string
	name    string
	id      string
	flow    string
}

var stationCmd = &cobra.Command{
	Use:   "station",
	Short: "Join a session as a simulated gas station",
	Long: `Joins a session, waits for the dashboard's start broadcast, then pumps at the
requested rate until the tank is empty, a STOP arrives, or the process is interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid := stationFlags.session
		if stationFlags.joinURL != "" {
			var err error
			if sid, err = session.SessionIDFromURL(stationFlags.joinURL); err != nil {
				return err
			}
		}
		if sid == "" {
			return errors.New("--session or --join-url is required")
		}
		if err := checkID("session", sid); err != nil {
			return err
		}
		if stationFlags.id != "" {
			if err := checkID("id", stationFlags.id); err != nil {
				return err
			}
		}
		flow := pump.FlowState(stationFlags.flow)
		if !flow.Valid() {
			return fmt.Errorf("%w: %q", pump.ErrInvalidFlow, stationFlags.flow)
		}

		ctx, cancel := signalContext()
		defer cancel()
		return runStation(ctx, nil, sid, stationFlags.id, stationFlags.name, flow)
	},
}

func init() {
	f := stationCmd.Flags()
	f.StringVarP(&stationFlags.session, "session", "s", "", "session id shown by the dashboard")
	f.StringVar(&stationFlags.joinURL, "join-url", "", "join URL from the dashboard QR code")
	f.StringVarP(&stationFlags.name, "name", "n", "", "station display name (random when empty)")
	f.StringVar(&stationFlags.id, "id", "", "station id (generated when empty)")
	f.StringVar(&stationFlags.flow, "flow", string(pump.FlowSlow), "flow rate once active (STOP, SLOW, FAST)")
}

func runStation(ctx context.Context, mem *memory.Broker, sessionID, id, name string, flow pump.FlowState) error {
	t, err := connect(ctx, cfg.Broker, "station", mem)
	if err != nil {
		return err
	}
	defer t.Disconnect()

	rec, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal(rec)

	s, err := lifecycle.NewStation(t, lifecycle.StationConfig{
		SessionID: sessionID,
		StationID: id,
		Namespace: cfg.Topics,
		Pump:      cfg.Station,
	}, lifecycle.WithLogger(logger.Named("station")), lifecycle.WithJournal(rec))
	if err != nil {
		return err
	}
	defer s.Close()

	if name == "" {
		name = rand.NewName()
	}
	if err := s.Submit(ctx, name); err != nil {
		return err
	}
	log := logger.With(zap.String("stationID", s.ID()), zap.String("name", name))
	log.Info("waiting for the dashboard to start the session")

	select {
	case <-s.Activated():
	case <-ctx.Done():
		return nil
	}

	if err := s.StartPump(ctx, flow); err != nil {
		return err
	}
	log.Info("pumping", zap.String("flow", string(flow)))

	// the pump stops on its own at empty or on STOP
	_ = waitFor(ctx, func() bool { return !s.Pumping() })
	log.Info("pump idle", zap.Float64("fuelLevel", s.Fuel()))
	return nil
}

// checkID rejects ids that would not fit in one topic level.
func checkID(flag, v string) error {
	if !topic.ValidLevel(v) {
		return fmt.Errorf("--%s %q: %w", flag, v, lifecycle.ErrInvalidID)
	}
	return nil
}

// waitFor polls cond until it holds or ctx is done.
func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
