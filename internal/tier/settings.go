package tier

// EffectsLevel is the post-processing budget handed to the renderer.
type EffectsLevel string

const (
	EffectsMinimal EffectsLevel = "minimal"
	EffectsLow     EffectsLevel = "low"
	EffectsMedium  EffectsLevel = "medium"
	EffectsHigh    EffectsLevel = "high"
	EffectsUltra   EffectsLevel = "ultra"
)

// Settings is the fixed configuration of one tier.
type Settings struct {
	TargetRate      float64      `json:"target_rate"`
	ResolutionScale float64      `json:"resolution_scale"`
	EffectsLevel    EffectsLevel `json:"effects_level"`
}

var table = map[Tier]Settings{
	VeryLow: {TargetRate: 24, ResolutionScale: 0.5, EffectsLevel: EffectsMinimal},
	Low:     {TargetRate: 30, ResolutionScale: 0.75, EffectsLevel: EffectsLow},
	Medium:  {TargetRate: 45, ResolutionScale: 0.85, EffectsLevel: EffectsMedium},
	High:    {TargetRate: 60, ResolutionScale: 1.0, EffectsLevel: EffectsHigh},
	Ultra:   {TargetRate: 60, ResolutionScale: 1.0, EffectsLevel: EffectsUltra},
}

// SettingsFor returns the settings of t. Unknown tiers get the lowest tier's settings.
func SettingsFor(t Tier) Settings {
	if s, ok := table[t]; ok {
		return s
	}
	return table[Lowest()]
}
