// Package fuzzharness drives two or more syncloop.Handles against one
// shared Storage Directory under concurrent, adversarial conditions,
// standing in for the opaque external replicator and its sloppy delivery
// behavior (frame.SloppyWriter), and asserts that every instance converges
// on the same document state once the run settles (spec.md §8's P1).
package fuzzharness

import "fmt"

// Scenario names one of the fixed stress profiles notecove's fuzz command
// can run.
type Scenario string

const (
	QuickSmoke    Scenario = "quick-smoke"
	RapidSameNote Scenario = "rapid-same-note"
	ManyNotes     Scenario = "many-notes"
	HalfDuplex    Scenario = "half-duplex-test"
	Chaos         Scenario = "chaos"
)

// Scenarios lists every recognized scenario name, in the order `notecove
// fuzz --help` should present them.
var Scenarios = []Scenario{QuickSmoke, RapidSameNote, ManyNotes, HalfDuplex, Chaos}

// ParseScenario validates name against the fixed scenario set.
func ParseScenario(name string) (Scenario, error) {
	for _, s := range Scenarios {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("fuzzharness: unknown scenario %q", name)
}

// profile bundles the tunables that distinguish one scenario from another.
type profile struct {
	instances int
	notes     int
	// editsPerSecond is each worker's target edit rate.
	editsPerSecond int
	adversary      bool
	// adversaryDeliveriesPerSecond is the phantom peer's delivery rate,
	// meaningful only when adversary is true.
	adversaryDeliveriesPerSecond int
	// corruptChance is the 0..1 probability an adversary delivery is
	// corrupt rather than a real peer edit.
	corruptChance float64
}

func profileFor(s Scenario) profile {
	switch s {
	case QuickSmoke:
		return profile{instances: 2, notes: 1, editsPerSecond: 5}
	case RapidSameNote:
		return profile{instances: 3, notes: 1, editsPerSecond: 40}
	case ManyNotes:
		return profile{instances: 3, notes: 20, editsPerSecond: 15}
	case HalfDuplex:
		return profile{instances: 2, notes: 3, editsPerSecond: 10, adversary: true, adversaryDeliveriesPerSecond: 8}
	case Chaos:
		return profile{instances: 4, notes: 12, editsPerSecond: 25, adversary: true, adversaryDeliveriesPerSecond: 20, corruptChance: 0.25}
	default:
		return profileFor(QuickSmoke)
	}
}
