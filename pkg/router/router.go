// Package router classifies incoming messages by topic and payload shape and applies
// them to the dashboard registry or to a station's local state.
//
// Dispatch never fails: malformed, foreign, or unrecognized messages are logged,
// counted, and dropped so that one bad message cannot tear down a subscription.
package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/journal"
	"github.com/edgeflare/pumpdemo/pkg/message"
	"github.com/edgeflare/pumpdemo/pkg/metrics"
	"github.com/edgeflare/pumpdemo/pkg/topic"
	"go.uber.org/zap"
)

const (
	RoleDashboard = "dashboard"
	RoleStation   = "station"
)

// Drop reasons, also used as metric labels.
var (
	ErrForeignSession = errors.New("foreign_session")
	ErrUnrecognized   = errors.New("unrecognized")
	ErrUnknownStation = errors.New("unknown_station")
	ErrInvalidTopic   = errors.New("invalid_topic")
	ErrMalformed      = errors.New("malformed_payload")
	errPanic          = errors.New("panic")
)

// Result describes what a dispatch did with one message.
type Result struct {
	Address topic.Address
	Kind    message.Kind
	// Err is the drop reason; nil when the message was applied or was a benign duplicate.
	Err error
	// Applied reports that state changed.
	Applied bool
	// NewStation is set when a login registered a previously unknown station.
	NewStation bool
	StationID  string
}

// Option configures a router.
type Option func(*base)

// WithLogger sets the router logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithJournal records every applied message.
func WithJournal(r *journal.Recorder) Option {
	return func(b *base) {
		b.journal = r
	}
}

// WithNamespace overrides the session channel names.
func WithNamespace(ns topic.Namespace) Option {
	return func(b *base) {
		b.ns = ns.WithDefaults()
	}
}

type base struct {
	logger    *zap.Logger
	journal   *journal.Recorder
	ns        topic.Namespace
	role      string
	sessionID string
}

func newBase(role, sessionID string, opts []Option) base {
	b := base{
		logger:    zap.NewNop(),
		ns:        topic.DefaultNamespace(),
		role:      role,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// parse resolves the address and payload, or returns a dropped Result.
func (b *base) parse(t string, payload []byte) (topic.Address, message.Message, *Result) {
	addr, err := topic.Parse(t)
	if err != nil {
		return addr, message.Message{}, &Result{Err: fmt.Errorf("%w: %v", ErrInvalidTopic, err)}
	}
	if addr.SessionID != b.sessionID {
		return addr, message.Message{}, &Result{Address: addr, Err: ErrForeignSession}
	}
	msg, err := message.Decode(payload)
	if err != nil {
		return addr, msg, &Result{Address: addr, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return addr, msg, nil
}

// finish logs, counts, and journals the result.
func (b *base) finish(t string, payload []byte, res Result, started time.Time) Result {
	metrics.DispatchDuration.WithLabelValues(b.role).Observe(time.Since(started).Seconds())

	if res.Err != nil {
		reason := dropReason(res.Err)
		metrics.MessagesDropped.WithLabelValues(b.role, reason).Inc()
		fields := []zap.Field{zap.String("topic", t), zap.String("reason", reason), zap.Error(res.Err)}
		if errors.Is(res.Err, ErrUnknownStation) || errors.Is(res.Err, ErrForeignSession) {
			b.logger.Debug("message ignored", fields...)
		} else {
			b.logger.Warn("message dropped", append(fields, zap.ByteString("payload", payload))...)
		}
		return res
	}

	metrics.MessagesDispatched.WithLabelValues(b.role, string(res.Kind)).Inc()
	if res.Applied && b.journal != nil {
		b.journal.Record(journal.Entry{
			At:        time.Now(),
			Role:      b.role,
			SessionID: b.sessionID,
			StationID: res.StationID,
			Kind:      string(res.Kind),
			Topic:     t,
			Payload:   payload,
		})
	}
	return res
}

func (b *base) recoverDispatch(t string, res *Result) {
	if r := recover(); r != nil {
		b.logger.Error("dispatch panic", zap.String("topic", t), zap.Any("panic", r))
		metrics.MessagesDropped.WithLabelValues(b.role, errPanic.Error()).Inc()
		*res = Result{Err: fmt.Errorf("%w: %v", errPanic, r)}
	}
}

func dropReason(err error) string {
	for _, reason := range []error{ErrInvalidTopic, ErrForeignSession, ErrMalformed, ErrUnknownStation, ErrUnrecognized, errPanic} {
		if errors.Is(err, reason) {
			return reason.Error()
		}
	}
	return "other"
}
