// Package rand generates human-friendly names and secrets.
package rand

import (
	mrand "math/rand/v2"
)

var adjectives = []string{
	"agile", "brave", "calm", "daring", "eager",
	"fancy", "gentle", "happy", "jolly", "kind",
	"lively", "mighty", "noble", "quick", "radiant",
	"sturdy", "trusty", "upbeat", "vibrant", "zesty",
}

var places = []string{
	"harbor", "ridge", "valley", "crossing", "junction",
	"summit", "meadow", "canyon", "prairie", "delta",
	"bayou", "mesa", "fjord", "orchard", "quarry",
	"glacier", "lagoon", "tundra", "savanna", "dune",
}

// NewName returns an "adjective-place" label, e.g. "sturdy-harbor". It names
// MQTT clients and stations that joined without one.
func NewName() string {
	return adjectives[mrand.IntN(len(adjectives))] + "-" + places[mrand.IntN(len(places))]
}
