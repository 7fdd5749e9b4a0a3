// Package render provides the daemon's renderer and compositor collaborators. They record the
// quality parameters pushed to them and log every change, so an out-of-process renderer can
// poll the current values through the management API.
package render

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/settings"
	"github.com/traylinx/perfgov/internal/tier"
)

// State is what the renderer and compositor currently hold.
type State struct {
	ResolutionScale    float64                `json:"resolution_scale"`
	EffectsLevel       tier.EffectsLevel      `json:"effects_level"`
	AdvancedAnimations bool                   `json:"advanced_animations"`
	Physics            bool                   `json:"physics"`
	LipSync            bool                   `json:"lip_sync"`
	RenderingMode      settings.RenderingMode `json:"rendering_mode,omitempty"`
	Changes            int                    `json:"changes"`
}

// Surface implements both settings.Renderer and settings.Compositor.
type Surface struct {
	mu    sync.RWMutex
	state State
}

var (
	_ settings.Renderer   = (*Surface)(nil)
	_ settings.Compositor = (*Surface)(nil)
)

// NewSurface creates a surface at full scale.
func NewSurface() *Surface {
	return &Surface{state: State{ResolutionScale: 1.0}}
}

// SetResolutionScale implements settings.Renderer.
func (s *Surface) SetResolutionScale(scale float64) {
	s.update("resolution_scale", scale, func(st *State) bool {
		if st.ResolutionScale == scale {
			return false
		}
		st.ResolutionScale = scale
		return true
	})
}

// SetEffectsLevel implements settings.Renderer.
func (s *Surface) SetEffectsLevel(level tier.EffectsLevel) {
	s.update("effects_level", level, func(st *State) bool {
		if st.EffectsLevel == level {
			return false
		}
		st.EffectsLevel = level
		return true
	})
}

// SetAdvancedAnimations implements settings.Renderer.
func (s *Surface) SetAdvancedAnimations(enabled bool) {
	s.update("advanced_animations", enabled, toggle(enabled, func(st *State) *bool { return &st.AdvancedAnimations }))
}

// SetPhysics implements settings.Renderer.
func (s *Surface) SetPhysics(enabled bool) {
	s.update("physics", enabled, toggle(enabled, func(st *State) *bool { return &st.Physics }))
}

// SetLipSync implements settings.Renderer.
func (s *Surface) SetLipSync(enabled bool) {
	s.update("lip_sync", enabled, toggle(enabled, func(st *State) *bool { return &st.LipSync }))
}

// SetRenderingMode implements settings.Compositor.
func (s *Surface) SetRenderingMode(mode settings.RenderingMode) {
	s.update("rendering_mode", mode, func(st *State) bool {
		if st.RenderingMode == mode {
			return false
		}
		st.RenderingMode = mode
		return true
	})
}

// State returns a copy of the current values.
func (s *Surface) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func toggle(enabled bool, field func(*State) *bool) func(*State) bool {
	return func(st *State) bool {
		f := field(st)
		if *f == enabled {
			return false
		}
		*f = enabled
		return true
	}
}

func (s *Surface) update(key string, value any, apply func(*State) bool) {
	s.mu.Lock()
	changed := apply(&s.state)
	if changed {
		s.state.Changes++
	}
	s.mu.Unlock()

	if changed {
		log.WithField("component", "render").Debugf("Render setting %s = %v", key, value)
	}
}
