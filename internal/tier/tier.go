// Package tier defines the ordered quality tiers and the controller that moves between them.
//
// The controller is a hysteresis loop fed by one smoothed throughput value per measurement
// window. A transition is first recorded as pending, confirmed only if the signal still
// holds after ConfirmDelay, and committed transitions are spaced by at least Cooldown.
package tier

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is a discrete quality level.
type Tier string

const (
	VeryLow Tier = "very_low"
	Low     Tier = "low"
	Medium  Tier = "medium"
	High    Tier = "high"
	Ultra   Tier = "ultra"
)

// Ordered lists every tier from lowest to highest.
var Ordered = []Tier{VeryLow, Low, Medium, High, Ultra}

// ErrUnknownTier is returned for names outside Ordered.
var ErrUnknownTier = errors.New("unknown tier")

// Index returns the position of t in Ordered, or -1.
func (t Tier) Index() int {
	for i, o := range Ordered {
		if o == t {
			return i
		}
	}
	return -1
}

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	return t.Index() >= 0
}

// Step returns the tier one position away in direction d, clamped to the ends.
// The boolean is false when t is already at the boundary.
func (t Tier) Step(d Direction) (Tier, bool) {
	i := t.Index()
	if i < 0 {
		return t, false
	}
	switch d {
	case Up:
		if i == len(Ordered)-1 {
			return t, false
		}
		return Ordered[i+1], true
	case Down:
		if i == 0 {
			return t, false
		}
		return Ordered[i-1], true
	}
	return t, false
}

// Lowest returns the bottom tier.
func Lowest() Tier { return Ordered[0] }

// Midpoint returns the middle tier.
func Midpoint() Tier { return Ordered[len(Ordered)/2] }

// InTopTwo reports whether t is one of the two highest tiers.
func (t Tier) InTopTwo() bool {
	return t.Index() >= len(Ordered)-2
}

// Parse validates a tier name.
func Parse(name string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(name)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, name)
	}
	return t, nil
}

// Direction is the sign of a tier change.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Between returns the direction of a move from one tier to another.
func Between(from, to Tier) Direction {
	if to.Index() > from.Index() {
		return Up
	}
	return Down
}
