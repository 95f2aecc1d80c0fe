// Package topic builds and parses the session-scoped topic namespace shared by the
// dashboard and every station.
//
//	{sessionId}/{login}              station -> dashboard   {"name": "...", "id": "..."}
//	{sessionId}/{start}              dashboard -> stations  {"start": true}
//	{sessionId}/{stationId}/SYS      dashboard -> station   {"command": "STOP"}
//	{sessionId}/{stationId}/flow     station -> dashboard   {"fuelLevel": 37, "log": "..."}
//
// Every topic is computable from the identifiers in hand; no lookup is needed.
package topic

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
)

const (
	Separator = "/"

	// MultiLevelWildcard matches any number of trailing levels.
	MultiLevelWildcard = "#"
	// SingleLevelWildcard matches exactly one level.
	SingleLevelWildcard = "+"

	SystemChannel = "SYS"
	FlowChannel   = "flow"

	DefaultLoginChannel = "login"
	DefaultStartChannel = "start"
)

var ErrInvalidTopic = errors.New("invalid topic")

// Namespace carries the configurable session-level channel names.
type Namespace struct {
	Login string `mapstructure:"login" json:"login"`
	Start string `mapstructure:"start" json:"start"`
}

// DefaultNamespace returns the channel names used when none are configured.
func DefaultNamespace() Namespace {
	return Namespace{Login: DefaultLoginChannel, Start: DefaultStartChannel}
}

// WithDefaults fills empty channel names.
func (n Namespace) WithDefaults() Namespace {
	n.Login = cmp.Or(strings.Trim(n.Login, Separator), DefaultLoginChannel)
	n.Start = cmp.Or(strings.Trim(n.Start, Separator), DefaultStartChannel)
	return n
}

func (n Namespace) LoginTopic(sessionID string) string {
	return join(sessionID, n.WithDefaults().Login)
}

func (n Namespace) StartTopic(sessionID string) string {
	return join(sessionID, n.WithDefaults().Start)
}

// StationTopic returns {sessionId}/{stationId}/{channel}.
func (n Namespace) StationTopic(sessionID, stationID, channel string) string {
	return join(sessionID, stationID, strings.Trim(channel, Separator))
}

func (n Namespace) SystemTopic(sessionID, stationID string) string {
	return n.StationTopic(sessionID, stationID, SystemChannel)
}

func (n Namespace) FlowTopic(sessionID, stationID string) string {
	return n.StationTopic(sessionID, stationID, FlowChannel)
}

// StationFilter is the subscription covering every channel under a station.
func (n Namespace) StationFilter(sessionID, stationID string) string {
	return join(sessionID, stationID, MultiLevelWildcard)
}

// ValidLevel reports whether s can stand as one concrete topic level: non-empty, with no
// separator and no wildcard. Session and station ids must satisfy it.
func ValidLevel(s string) bool {
	return s != "" && !strings.ContainsAny(s, Separator+MultiLevelWildcard+SingleLevelWildcard)
}

// Address is a parsed topic.
type Address struct {
	SessionID string
	// StationID is empty for session-level channels (login, start).
	StationID string
	Channel   string
}

// IsStation reports whether the address names a per-station channel.
func (a Address) IsStation() bool {
	return a.StationID != ""
}

func (a Address) String() string {
	if a.IsStation() {
		return join(a.SessionID, a.StationID, a.Channel)
	}
	return join(a.SessionID, a.Channel)
}

// Parse splits a concrete topic into its session, station and channel parts.
// Two levels name a session channel; three or more name a station channel whose
// Channel is the remaining suffix.
func Parse(t string) (Address, error) {
	parts := strings.Split(strings.Trim(t, Separator), Separator)
	if len(parts) < 2 {
		return Address{}, fmt.Errorf("%w: %q has fewer than 2 levels", ErrInvalidTopic, t)
	}
	for _, p := range parts {
		if p == "" {
			return Address{}, fmt.Errorf("%w: %q has an empty level", ErrInvalidTopic, t)
		}
		if p == MultiLevelWildcard || p == SingleLevelWildcard {
			return Address{}, fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, t)
		}
	}

	if len(parts) == 2 {
		return Address{SessionID: parts[0], Channel: parts[1]}, nil
	}
	return Address{
		SessionID: parts[0],
		StationID: parts[1],
		Channel:   strings.Join(parts[2:], Separator),
	}, nil
}

// Match reports whether topic matches the MQTT-style filter pattern.
func Match(pattern, topic string) bool {
	return matchParts(strings.Split(pattern, Separator), strings.Split(topic, Separator), 0, 0)
}

func matchParts(pattern, topic []string, pIdx, tIdx int) bool {
	if pIdx >= len(pattern) {
		return tIdx >= len(topic)
	}
	if tIdx >= len(topic) {
		return pIdx == len(pattern)-1 && pattern[pIdx] == MultiLevelWildcard
	}
	switch pattern[pIdx] {
	case MultiLevelWildcard:
		return true
	case SingleLevelWildcard:
		return matchParts(pattern, topic, pIdx+1, tIdx+1)
	default:
		return pattern[pIdx] == topic[tIdx] && matchParts(pattern, topic, pIdx+1, tIdx+1)
	}
}

func join(levels ...string) string {
	return strings.Join(levels, Separator)
}
