// Package settings pushes the settings of a committed tier to the rendering collaborators.
// The Applier is the only writer of their quality parameters.
package settings

import (
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/tier"
)

// Renderer is the model renderer's quality surface.
type Renderer interface {
	SetResolutionScale(scale float64)
	SetEffectsLevel(level tier.EffectsLevel)
	SetAdvancedAnimations(enabled bool)
	SetPhysics(enabled bool)
	SetLipSync(enabled bool)
}

// Compositor is the wallpaper/compositing surface.
type Compositor interface {
	SetRenderingMode(mode RenderingMode)
}

// RenderingMode is the fidelity of the wallpaper composition.
type RenderingMode string

const (
	Mode3D  RenderingMode = "3d"
	Mode25D RenderingMode = "2.5d"
	Mode2D  RenderingMode = "2d"
)

// ModeFor returns the recommended rendering mode for t.
func ModeFor(t tier.Tier) RenderingMode {
	switch {
	case t.InTopTwo():
		return Mode3D
	case t == tier.Midpoint():
		return Mode25D
	default:
		return Mode2D
	}
}

// CapabilitySource answers whether an optional feature can be enabled.
type CapabilitySource interface {
	IsAvailable(name string) bool
}

// Applied records what the last Apply pushed.
type Applied struct {
	Tier               tier.Tier      `json:"tier"`
	Settings           tier.Settings  `json:"settings"`
	AdvancedAnimations bool           `json:"advanced_animations"`
	Physics            bool           `json:"physics"`
	LipSync            bool           `json:"lip_sync"`
	RenderingMode      *RenderingMode `json:"rendering_mode,omitempty"`
}

// Applier maps tiers to collaborator calls.
type Applier struct {
	renderer     Renderer
	compositor   Compositor
	capabilities CapabilitySource
	autoAdjust   bool
	last         *Applied
}

// NewApplier creates an applier. compositor and capabilities may be nil.
func NewApplier(renderer Renderer, compositor Compositor, capabilities CapabilitySource, autoAdjust bool) *Applier {
	return &Applier{
		renderer:     renderer,
		compositor:   compositor,
		capabilities: capabilities,
		autoAdjust:   autoAdjust,
	}
}

// SetAutoAdjust toggles rendering-mode recommendations.
func (a *Applier) SetAutoAdjust(enabled bool) {
	a.autoAdjust = enabled
}

// AutoAdjust reports whether rendering-mode recommendations are made.
func (a *Applier) AutoAdjust() bool {
	return a.autoAdjust
}

// Apply pushes the settings of t.
func (a *Applier) Apply(t tier.Tier) Applied {
	s := tier.SettingsFor(t)
	idx := t.Index()

	applied := Applied{
		Tier:               t,
		Settings:           s,
		AdvancedAnimations: t.InTopTwo(),
		Physics:            idx >= tier.Midpoint().Index() && a.has(capability.Physics),
		LipSync:            idx >= tier.Low.Index() && a.has(capability.LipSync),
	}

	if a.renderer != nil {
		a.renderer.SetResolutionScale(s.ResolutionScale)
		a.renderer.SetEffectsLevel(s.EffectsLevel)
		a.renderer.SetAdvancedAnimations(applied.AdvancedAnimations)
		a.renderer.SetPhysics(applied.Physics)
		a.renderer.SetLipSync(applied.LipSync)
	}

	if a.autoAdjust && a.compositor != nil {
		mode := ModeFor(t)
		a.compositor.SetRenderingMode(mode)
		applied.RenderingMode = &mode
	}

	log.WithField("component", "settings").Debugf("Applied %s: scale=%.2f effects=%s", t, s.ResolutionScale, s.EffectsLevel)
	a.last = &applied
	return applied
}

// Last returns what the previous Apply pushed.
func (a *Applier) Last() (Applied, bool) {
	if a.last == nil {
		return Applied{}, false
	}
	return *a.last, true
}

func (a *Applier) has(name string) bool {
	return a.capabilities != nil && a.capabilities.IsAvailable(name)
}
