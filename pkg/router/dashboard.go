package router

import (
	"fmt"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/edgeflare/pumpdemo/pkg/topic"
	"go.uber.org/zap"
)

// Registry is the subset of registry.Registry the dashboard router mutates.
type Registry interface {
	Register(id, name string) bool
	UpdateFuelLevel(id string, level float64) bool
	AppendLog(id, text string) bool
	MarkStopReceived(id string) bool
}

// Dashboard applies station traffic for one session to a registry.
type Dashboard struct {
	base
	reg Registry
}

func NewDashboard(sessionID string, reg Registry, opts ...Option) *Dashboard {
	return &Dashboard{base: newBase(RoleDashboard, sessionID, opts), reg: reg}
}

// Handle adapts Dispatch to transport.Handler.
func (d *Dashboard) Handle(t string, payload []byte) {
	d.Dispatch(t, payload)
}

// Dispatch classifies one message:
//
//   - a login payload on the session login channel registers a station;
//   - STOP on a station's SYS channel marks it stopped;
//   - a fuelLevel payload on any station channel updates telemetry, plus its log line;
//   - anything else is dropped.
func (d *Dashboard) Dispatch(t string, payload []byte) (res Result) {
	started := time.Now()
	defer d.recoverDispatch(t, &res)

	addr, msg, drop := d.parse(t, payload)
	if drop != nil {
		return d.finish(t, payload, *drop, started)
	}

	res = Result{Address: addr, Kind: msg.Kind(), StationID: addr.StationID}
	switch {
	case !addr.IsStation() && addr.Channel == d.ns.Login && msg.IsLogin():
		res.Kind = message.KindLogin
		res.StationID = msg.Login.ID
		if !topic.ValidLevel(msg.Login.ID) {
			res.Err = fmt.Errorf("%w: station id %q is not a single topic level", ErrInvalidTopic, msg.Login.ID)
			break
		}
		res.NewStation = d.reg.Register(msg.Login.ID, msg.Login.Name)
		res.Applied = res.NewStation
		if res.NewStation {
			d.logger.Info("station registered",
				zap.String("stationID", msg.Login.ID), zap.String("name", msg.Login.Name))
		} else {
			d.logger.Debug("duplicate login ignored", zap.String("stationID", msg.Login.ID))
		}

	case addr.IsStation() && addr.Channel == topic.SystemChannel && msg.IsStop():
		res.Kind = message.KindCommand
		res.Applied = d.reg.MarkStopReceived(addr.StationID)
		if !res.Applied {
			res.Err = ErrUnknownStation
		}

	case addr.IsStation() && msg.HasFuelLevel():
		res.Kind = message.KindTelemetry
		res.Applied = d.reg.UpdateFuelLevel(addr.StationID, msg.Flow.FuelLevel)
		if !res.Applied {
			res.Err = ErrUnknownStation
			break
		}
		if msg.HasLog() {
			d.reg.AppendLog(addr.StationID, msg.Flow.Log)
		}

	default:
		res.Kind = message.KindUnknown
		res.Err = ErrUnrecognized
	}

	return d.finish(t, payload, res, started)
}
