// Package engine wires capability detection, throughput sampling, tier control, settings
// application and change notification into one owner. Every state change runs on the
// scheduler, so the components it owns need no locking of their own.
package engine

import (
	"time"

	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/settings"
	"github.com/traylinx/perfgov/internal/throughput"
	"github.com/traylinx/perfgov/internal/tier"
)

// Config holds the engine parameters.
type Config struct {
	InitialTier tier.Tier
	Policy      tier.Policy
	Notifier    notify.Config
	WindowSize  int
	NominalRate float64
	AutoAdjust  bool

	// NormaliseRate rescales measurement windows that ran past one second.
	NormaliseRate bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		InitialTier: tier.High,
		Policy:      tier.DefaultPolicy(),
		Notifier:    notify.DefaultConfig(),
		WindowSize:  throughput.DefaultWindowSize,
		NominalRate: throughput.DefaultNominalRate,
		AutoAdjust:  true,
	}
}

// Listener observes engine activity. Callbacks run on the engine loop and must not block;
// slow work belongs on the listener's own goroutine.
type Listener interface {
	TierChanged(tr tier.Transition, changeID string)
	Confirmed(changeID string)
	CapabilityChanged(state capability.State)
	DeliveryDropped(rec notify.Record)
	Sampled(sample throughput.Sample, average float64)
}

// Report is a point-in-time view of the engine.
type Report struct {
	Tier         tier.Tier         `json:"tier"`
	Settings     tier.Settings     `json:"settings"`
	Applied      *settings.Applied `json:"applied,omitempty"`
	Pending      *tier.Pending     `json:"pending,omitempty"`
	LastCommit   time.Time         `json:"last_commit,omitempty"`
	Average      float64           `json:"average"`
	Samples      []float64         `json:"samples"`
	Visible      bool              `json:"visible"`
	AutoAdjust   bool              `json:"auto_adjust"`
	Running      bool              `json:"running"`
	Capabilities capability.Report `json:"capabilities"`
	Deliveries   []notify.Record   `json:"deliveries"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
