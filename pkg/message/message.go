// Package message encodes and classifies the JSON payloads exchanged on session topics.
//
//	login  {"name": string, "id": string}
//	start  {"start": true}
//	SYS    {"command": "STOP"}
//	flow   {"fuelLevel": number, "log"?: string}
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const CommandStop = "STOP"

var ErrMalformedPayload = errors.New("malformed payload")

// Kind names the shape a payload was classified as.
type Kind string

const (
	KindUnknown   Kind = "unknown"
	KindLogin     Kind = "login"
	KindStart     Kind = "start"
	KindCommand   Kind = "command"
	KindTelemetry Kind = "telemetry"
)

type Login struct {
	Name string `json:"name" mapstructure:"name"`
	ID   string `json:"id" mapstructure:"id"`
}

type Start struct {
	Start bool `json:"start" mapstructure:"start"`
}

type Command struct {
	Command string `json:"command" mapstructure:"command"`
}

type Flow struct {
	FuelLevel float64 `json:"fuelLevel" mapstructure:"fuelLevel"`
	Log       string  `json:"log,omitempty" mapstructure:"log"`
}

// Message is a decoded payload. A field is non-nil when the payload carries that shape;
// one payload may match several shapes and the router decides by channel.
type Message struct {
	Login   *Login
	Start   *Start
	Command *Command
	Flow    *Flow
}

// IsLogin reports a {name, id} payload with a non-empty id.
func (m Message) IsLogin() bool {
	return m.Login != nil && m.Login.ID != ""
}

func (m Message) IsStart() bool {
	return m.Start != nil && m.Start.Start
}

func (m Message) IsStop() bool {
	return m.Command != nil && m.Command.Command == CommandStop
}

func (m Message) HasFuelLevel() bool {
	return m.Flow != nil
}

// HasLog reports a telemetry payload carrying a log line.
func (m Message) HasLog() bool {
	return m.Flow != nil && m.Flow.Log != ""
}

// Kind returns the first shape the payload matches.
func (m Message) Kind() Kind {
	switch {
	case m.IsLogin():
		return KindLogin
	case m.IsStart():
		return KindStart
	case m.Command != nil:
		return KindCommand
	case m.HasFuelLevel():
		return KindTelemetry
	default:
		return KindUnknown
	}
}

// Decode parses a JSON object payload and fills every shape it matches.
func Decode(payload []byte) (Message, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return Message{}, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	var m Message
	if has(fields, "name", "id") {
		m.Login = &Login{}
		if err := decode(fields, m.Login); err != nil {
			return Message{}, err
		}
	}
	if has(fields, "start") {
		m.Start = &Start{}
		if err := decode(fields, m.Start); err != nil {
			return Message{}, err
		}
	}
	if has(fields, "command") {
		m.Command = &Command{}
		if err := decode(fields, m.Command); err != nil {
			return Message{}, err
		}
	}
	if has(fields, "fuelLevel") {
		m.Flow = &Flow{}
		if err := decode(fields, m.Flow); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

func has(fields map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := fields[k]; !ok || v == nil {
			return false
		}
	}
	return true
}

// decode maps fields onto out, accepting e.g. "37" for a numeric fuel level.
func decode(fields map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func NewLogin(name, id string) Login {
	return Login{Name: name, ID: id}
}

func NewStart() Start {
	return Start{Start: true}
}

func NewStop() Command {
	return Command{Command: CommandStop}
}

func NewFlow(fuelLevel float64, log string) Flow {
	return Flow{FuelLevel: fuelLevel, Log: log}
}

// Encode renders a payload as the JSON string published on the wire.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
