package tier

import "time"

// Policy holds the hysteresis parameters.
type Policy struct {
	// Cooldown is the minimum spacing between committed transitions.
	Cooldown time.Duration

	// ConfirmDelay is how long a pending transition is observed before committing.
	ConfirmDelay time.Duration

	// DownTrigger and DownConfirm bound the rate/target ratio for a downgrade.
	DownTrigger float64
	DownConfirm float64

	// UpTrigger and UpConfirm bound the rate/target ratio for an upgrade.
	UpTrigger float64
	UpConfirm float64
}

// DefaultPolicy returns the default hysteresis parameters.
func DefaultPolicy() Policy {
	return Policy{
		Cooldown:     10 * time.Second,
		ConfirmDelay: 3 * time.Second,
		DownTrigger:  0.8,
		DownConfirm:  0.85,
		UpTrigger:    1.2,
		UpConfirm:    1.15,
	}
}

// Pending is a transition under observation.
type Pending struct {
	Direction Direction `json:"direction"`
	Since     time.Time `json:"since"`
}

// State is everything the evaluation needs to remember between windows.
type State struct {
	Current    Tier      `json:"current"`
	LastCommit time.Time `json:"last_commit"`
	Pending    *Pending  `json:"pending,omitempty"`
}

// Reason says what drove a transition.
type Reason string

const (
	ReasonThroughput Reason = "throughput"
	ReasonManual     Reason = "manual"
	ReasonCapability Reason = "capability"
)

// Transition is a committed tier change.
type Transition struct {
	From      Tier      `json:"from"`
	To        Tier      `json:"to"`
	Direction Direction `json:"direction"`
	Reason    Reason    `json:"reason"`
	Rate      float64   `json:"rate"`
	At        time.Time `json:"at"`
}

// Evaluate runs one step of the hysteresis loop for a completed measurement window and
// returns the next state. The transition is non-nil only when a change was committed.
func Evaluate(s State, average float64, now time.Time, p Policy) (State, *Transition) {
	if now.Sub(s.LastCommit) < p.Cooldown {
		return s, nil
	}

	ratio := average / SettingsFor(s.Current).TargetRate

	if s.Pending != nil {
		if now.Sub(s.Pending.Since) < p.ConfirmDelay {
			return s, nil
		}

		dir := s.Pending.Direction
		confirmed := (dir == Down && ratio < p.DownConfirm) || (dir == Up && ratio > p.UpConfirm)
		s.Pending = nil
		if !confirmed {
			return s, nil
		}

		next, moved := s.Current.Step(dir)
		if !moved {
			// Nothing was committed, so LastCommit stays put and no cooldown is armed.
			return s, nil
		}
		tr := &Transition{
			From:      s.Current,
			To:        next,
			Direction: dir,
			Reason:    ReasonThroughput,
			Rate:      average,
			At:        now,
		}
		s.Current = next
		s.LastCommit = now
		return s, tr
	}

	switch {
	case ratio < p.DownTrigger:
		s.Pending = &Pending{Direction: Down, Since: now}
	case ratio > p.UpTrigger:
		s.Pending = &Pending{Direction: Up, Since: now}
	}
	return s, nil
}
