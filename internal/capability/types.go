// Package capability detects which runtime features the host offers and derives how
// degraded the client has to run. Detection never fails: a check that errors or panics
// simply records the capability as unavailable.
package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Availability is the tri-state result of a capability check.
type Availability string

const (
	// Available means the capability was detected.
	Available Availability = "available"

	// Unavailable means the capability is absent or its check failed.
	Unavailable Availability = "unavailable"

	// Pending means detection is deferred to a later asynchronous update.
	// Pending entries count as neither present nor missing.
	Pending Availability = "pending"
)

// FromBool converts a plain detection result.
func FromBool(ok bool) Availability {
	if ok {
		return Available
	}
	return Unavailable
}

// ParseAvailability accepts true/false/pending and the canonical names.
func ParseAvailability(s string) (Availability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "available", "1", "yes":
		return Available, nil
	case "false", "unavailable", "0", "no":
		return Unavailable, nil
	case "pending":
		return Pending, nil
	default:
		return "", fmt.Errorf("invalid availability %q", s)
	}
}

// Level is the derived system state.
type Level string

const (
	LevelComplete Level = "complete"
	LevelDegraded Level = "degraded"
	LevelBasic    Level = "basic"
)

// Capability names probed by the default battery.
const (
	RenderV2     = "render_v2"
	RenderV1     = "render_v1"
	GPU          = "gpu"
	Audio        = "audio"
	Microphone   = "microphone"
	Haptics      = "haptics"
	SDK          = "sdk"
	Model        = "model"
	Physics      = "physics"
	LipSync      = "lipsync"
	Transport    = "transport"
	LocalStorage = "local_storage"
	IndexedDB    = "indexed_db"
)

// ErrUnknownCapability is returned for names outside the matrix.
var ErrUnknownCapability = errors.New("unknown capability")

// Entry is one row of the capability matrix.
type Entry struct {
	Name      string       `json:"name"`
	Available Availability `json:"available"`
	Required  bool         `json:"required"`
	Fallback  string       `json:"fallback,omitempty"`
}

// FallbackUse records a missing required capability that is covered by a fallback.
type FallbackUse struct {
	Capability string `json:"capability"`
	Fallback   string `json:"fallback"`
}

// State is derived from the matrix. Exactly one of Complete, Degraded and Basic is true.
type State struct {
	Complete        bool          `json:"complete"`
	Degraded        bool          `json:"degraded"`
	Basic           bool          `json:"basic"`
	Missing         []string      `json:"missing"`
	FallbacksActive []FallbackUse `json:"fallbacks_active"`
}

// Level returns the active state flag as a Level.
func (s State) Level() Level {
	switch {
	case s.Complete:
		return LevelComplete
	case s.Degraded:
		return LevelDegraded
	default:
		return LevelBasic
	}
}

// Report is a read-only diagnostic snapshot.
type Report struct {
	State        State            `json:"state"`
	Level        Level            `json:"level"`
	Capabilities map[string]Entry `json:"capabilities"`
	Missing      []string         `json:"missing"`
	Fallbacks    []FallbackUse    `json:"fallbacks"`
}

// CheckFunc probes a single capability.
type CheckFunc func(ctx context.Context) (Availability, error)

// Spec declares a matrix row and how to probe it.
type Spec struct {
	Name     string
	Required bool
	Fallback string
	Check    CheckFunc
}
