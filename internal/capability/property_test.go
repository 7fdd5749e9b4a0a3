package capability

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ExactlyOneStateFlag checks that every matrix derives exactly one of
// complete, degraded and basic.
func TestProperty_ExactlyOneStateFlag(t *testing.T) {
	properties := gopter.NewProperties(nil)

	choices := []Availability{Available, Unavailable, Pending}

	properties.Property("complete xor degraded xor basic", prop.ForAll(
		func(avail []int, required []bool, fallback []bool) bool {
			n := len(avail)
			if len(required) < n {
				n = len(required)
			}
			if len(fallback) < n {
				n = len(fallback)
			}
			entries := make([]Entry, 0, n)
			for i := 0; i < n; i++ {
				e := Entry{Name: string(rune('a' + i%26)), Available: choices[avail[i]], Required: required[i]}
				if fallback[i] {
					e.Fallback = "fb"
				}
				entries = append(entries, e)
			}

			state := Derive(entries)
			count := 0
			for _, flag := range []bool{state.Complete, state.Degraded, state.Basic} {
				if flag {
					count++
				}
			}
			return count == 1
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
