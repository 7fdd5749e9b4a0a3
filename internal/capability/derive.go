package capability

// Derive computes the system state from a matrix. Entries are visited in the order given so
// Missing and FallbacksActive are deterministic.
//
// When some missing required capabilities have a fallback and others do not, the state is
// still degraded rather than basic.
func Derive(entries []Entry) State {
	var missingRequired, missingOptional []string
	fallbacks := make([]FallbackUse, 0)

	for _, e := range entries {
		if e.Available != Unavailable {
			continue
		}
		if !e.Required {
			missingOptional = append(missingOptional, e.Name)
			continue
		}
		missingRequired = append(missingRequired, e.Name)
		if e.Fallback != "" {
			fallbacks = append(fallbacks, FallbackUse{Capability: e.Name, Fallback: e.Fallback})
		}
	}

	state := State{
		Missing:         append(append(make([]string, 0, len(missingRequired)+len(missingOptional)), missingRequired...), missingOptional...),
		FallbacksActive: fallbacks,
	}

	switch {
	case len(missingRequired) == 0:
		state.Complete = true
	case len(fallbacks) > 0:
		state.Degraded = true
	default:
		state.Basic = true
	}
	return state
}
