package router

import (
	"time"

	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/edgeflare/pumpdemo/pkg/topic"
)

// StationHandler receives the commands a station reacts to.
type StationHandler interface {
	// Activate is called when the dashboard announces the start of the game.
	Activate()
	// StopReceived is called when the dashboard stops this station.
	StopReceived()
}

// Station routes session and SYS traffic for a single station.
type Station struct {
	base
	stationID string
	h         StationHandler
}

func NewStation(sessionID, stationID string, h StationHandler, opts ...Option) *Station {
	return &Station{base: newBase(RoleStation, sessionID, opts), stationID: stationID, h: h}
}

// Handle adapts Dispatch to transport.Handler.
func (s *Station) Handle(t string, payload []byte) {
	s.Dispatch(t, payload)
}

// Dispatch activates the station on a start announcement and forwards STOP sent to
// this station's SYS channel. Traffic addressed to other stations is dropped.
func (s *Station) Dispatch(t string, payload []byte) (res Result) {
	started := time.Now()
	defer s.recoverDispatch(t, &res)

	addr, msg, drop := s.parse(t, payload)
	if drop != nil {
		return s.finish(t, payload, *drop, started)
	}

	res = Result{Address: addr, Kind: msg.Kind(), StationID: s.stationID}
	switch {
	case !addr.IsStation() && addr.Channel == s.ns.Start && msg.IsStart():
		res.Kind = message.KindStart
		res.Applied = true
		s.h.Activate()

	case addr.IsStation() && addr.StationID == s.stationID &&
		addr.Channel == topic.SystemChannel && msg.IsStop():
		res.Kind = message.KindCommand
		res.Applied = true
		s.h.StopReceived()

	default:
		res.Kind = message.KindUnknown
		res.Err = ErrUnrecognized
	}

	return s.finish(t, payload, res, started)
}
