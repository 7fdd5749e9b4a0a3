package tier

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/capability"
)

// CommitFunc receives every committed transition.
type CommitFunc func(Transition)

// Controller owns the tier state. It is not safe for concurrent use; the engine loop is its
// only caller.
type Controller struct {
	policy   Policy
	state    State
	onCommit CommitFunc
}

// NewController creates a controller starting at initial. An invalid initial tier falls back
// to the midpoint.
func NewController(initial Tier, policy Policy, onCommit CommitFunc) *Controller {
	if !initial.Valid() {
		log.WithField("component", "tier").Warnf("Invalid initial tier %q, using %s", initial, Midpoint())
		initial = Midpoint()
	}
	return &Controller{
		policy:   policy,
		state:    State{Current: initial},
		onCommit: onCommit,
	}
}

// Current returns the active tier.
func (c *Controller) Current() Tier {
	return c.state.Current
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	s := c.state
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	return s
}

// Policy returns the hysteresis parameters.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Observe feeds the smoothed rate of a completed window into the hysteresis loop.
func (c *Controller) Observe(average float64, now time.Time) *Transition {
	before := c.state.Pending
	next, tr := Evaluate(c.state, average, now, c.policy)
	c.state = next

	switch {
	case tr != nil:
		log.WithField("component", "tier").Infof("Tier %s -> %s (rate %.1f)", tr.From, tr.To, average)
		c.commit(*tr)
	case before == nil && next.Pending != nil:
		log.WithField("component", "tier").Debugf("Pending %s transition from %s (rate %.1f)", next.Pending.Direction, next.Current, average)
	case before != nil && next.Pending == nil:
		log.WithField("component", "tier").Debugf("Dropped pending %s transition (rate %.1f)", before.Direction, average)
	}
	return tr
}

// SetTier forces the tier, bypassing hysteresis. Unknown names are logged and ignored. Setting
// the current tier again returns no transition.
func (c *Controller) SetTier(name string, rate float64, now time.Time) (*Transition, error) {
	t, err := Parse(name)
	if err != nil {
		log.WithField("component", "tier").Warnf("Ignoring tier override: %v", err)
		return nil, err
	}
	return c.force(t, ReasonManual, rate, now), nil
}

// ApplyCapabilityLevel forces the tier down when capabilities are missing: basic pins the
// lowest tier and degraded caps the top two tiers at the midpoint.
func (c *Controller) ApplyCapabilityLevel(level capability.Level, rate float64, now time.Time) *Transition {
	switch level {
	case capability.LevelBasic:
		if c.state.Current != Lowest() {
			return c.force(Lowest(), ReasonCapability, rate, now)
		}
	case capability.LevelDegraded:
		if c.state.Current.InTopTwo() {
			return c.force(Midpoint(), ReasonCapability, rate, now)
		}
	}
	return nil
}

func (c *Controller) force(t Tier, reason Reason, rate float64, now time.Time) *Transition {
	c.state.Pending = nil
	if t == c.state.Current {
		return nil
	}
	tr := Transition{
		From:      c.state.Current,
		To:        t,
		Direction: Between(c.state.Current, t),
		Reason:    reason,
		Rate:      rate,
		At:        now,
	}
	c.state.Current = t
	c.state.LastCommit = now
	log.WithField("component", "tier").Infof("Tier forced %s -> %s (%s)", tr.From, tr.To, reason)
	c.commit(tr)
	return &tr
}

func (c *Controller) commit(tr Transition) {
	if c.onCommit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("component", "tier").Errorf("Panic in commit handler for %s -> %s: %v", tr.From, tr.To, r)
		}
	}()
	c.onCommit(tr)
}

func (t Transition) String() string {
	return fmt.Sprintf("%s->%s(%s)", t.From, t.To, t.Reason)
}
