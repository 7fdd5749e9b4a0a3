package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ProbeConfig tunes how checks are executed.
type ProbeConfig struct {
	// Timeout bounds a single check.
	Timeout time.Duration

	// MaxConcurrentChecks limits how many checks run at once.
	MaxConcurrentChecks int
}

// DefaultProbeConfig returns the default probe configuration.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Timeout:             2 * time.Second,
		MaxConcurrentChecks: 4,
	}
}

// Derived marks a spec whose availability is computed from other entries instead of a check:
// available if any source is available, pending if none is but one is still pending.
type Derived struct {
	Name     string
	Required bool
	Fallback string
	AnyOf    []string
}

// Probe owns the capability matrix.
type Probe struct {
	cfg     ProbeConfig
	specs   []Spec
	derived []Derived

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	state   State

	// gen counts UpdateCapability calls per entry so Detect never overwrites a newer result.
	gen map[string]uint64
}

// NewProbe creates a probe for the given battery. Every entry starts pending until Detect runs.
func NewProbe(cfg ProbeConfig, specs []Spec, derived []Derived) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeConfig().Timeout
	}
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = DefaultProbeConfig().MaxConcurrentChecks
	}

	p := &Probe{
		cfg:     cfg,
		specs:   specs,
		derived: derived,
		entries: make(map[string]*Entry, len(specs)+len(derived)),
		gen:     make(map[string]uint64, len(specs)+len(derived)),
	}
	for _, s := range specs {
		p.entries[s.Name] = &Entry{Name: s.Name, Available: Pending, Required: s.Required, Fallback: s.Fallback}
		p.order = append(p.order, s.Name)
	}
	for _, d := range derived {
		p.entries[d.Name] = &Entry{Name: d.Name, Available: Pending, Required: d.Required, Fallback: d.Fallback}
		p.order = append(p.order, d.Name)
	}
	p.state = Derive(p.snapshotLocked())
	return p
}

// Detect runs every check, stores the results and returns the derived state. An entry
// updated through UpdateCapability while the checks ran keeps the updated value.
func (p *Probe) Detect(ctx context.Context) State {
	p.mu.RLock()
	started := make(map[string]uint64, len(p.gen))
	for name, g := range p.gen {
		started[name] = g
	}
	p.mu.RUnlock()

	results := make([]Availability, len(p.specs))

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrentChecks)
	for i, s := range p.specs {
		i, s := i, s
		g.Go(func() error {
			results[i] = p.runCheck(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	for i, s := range p.specs {
		if p.gen[s.Name] != started[s.Name] {
			log.WithField("component", "capability").Debugf("Keeping %s=%s set during detection", s.Name, p.entries[s.Name].Available)
			continue
		}
		p.entries[s.Name].Available = results[i]
	}
	p.resolveDerivedLocked()
	p.state = Derive(p.snapshotLocked())
	state := p.state
	p.mu.Unlock()

	log.WithField("component", "capability").Infof("Capability detection finished: %s (missing: %v)", state.Level(), state.Missing)
	return cloneState(state)
}

type checkResult struct {
	avail Availability
	err   error
}

// runCheck executes one check and folds errors, panics and timeouts into Unavailable. The
// timeout holds even for a check that ignores its context; such a check is left to finish
// on its own goroutine.
func (p *Probe) runCheck(ctx context.Context, s Spec) Availability {
	if s.Check == nil {
		return Unavailable
	}

	checkCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	done := make(chan checkResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("component", "capability").Errorf("Panic in capability check %s: %v", s.Name, r)
				done <- checkResult{avail: Unavailable, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		avail, err := s.Check(checkCtx)
		done <- checkResult{avail: avail, err: err}
	}()

	var res checkResult
	select {
	case res = <-done:
	case <-checkCtx.Done():
		log.WithField("component", "capability").Warnf("Capability check %s abandoned: %v", s.Name, checkCtx.Err())
		return Unavailable
	}

	if res.err != nil {
		log.WithField("component", "capability").Debugf("Capability check %s failed: %v", s.Name, res.err)
		return Unavailable
	}
	switch res.avail {
	case Available, Unavailable, Pending:
		return res.avail
	default:
		return Unavailable
	}
}

// UpdateCapability sets one entry and re-derives the state. It reports false for unknown
// names, leaving the matrix untouched.
func (p *Probe) UpdateCapability(name string, avail Availability) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[name]
	if !ok {
		log.WithField("component", "capability").Warnf("Ignoring update for unknown capability %q", name)
		return cloneState(p.state), false
	}
	switch avail {
	case Available, Unavailable, Pending:
	default:
		log.WithField("component", "capability").Warnf("Ignoring invalid availability %q for %s", avail, name)
		return cloneState(p.state), false
	}

	entry.Available = avail
	p.gen[name]++
	if !p.isDerived(name) {
		p.resolveDerivedLocked()
	}
	p.state = Derive(p.snapshotLocked())
	return cloneState(p.state), true
}

// Lookup returns one entry.
func (p *Probe) Lookup(name string) (Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return *entry, nil
}

// IsAvailable reports whether name is known and available.
func (p *Probe) IsAvailable(name string) bool {
	e, err := p.Lookup(name)
	return err == nil && e.Available == Available
}

// State returns the current derived state.
func (p *Probe) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneState(p.state)
}

// Report returns a read-only snapshot for diagnostics.
func (p *Probe) Report() Report {
	p.mu.RLock()
	defer p.mu.RUnlock()

	caps := make(map[string]Entry, len(p.entries))
	for name, e := range p.entries {
		caps[name] = *e
	}
	state := cloneState(p.state)
	return Report{
		State:        state,
		Level:        state.Level(),
		Capabilities: caps,
		Missing:      append([]string(nil), state.Missing...),
		Fallbacks:    append([]FallbackUse(nil), state.FallbacksActive...),
	}
}

func (p *Probe) isDerived(name string) bool {
	for _, d := range p.derived {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (p *Probe) resolveDerivedLocked() {
	for _, d := range p.derived {
		result := Unavailable
		for _, src := range d.AnyOf {
			e, ok := p.entries[src]
			if !ok {
				continue
			}
			if e.Available == Available {
				result = Available
				break
			}
			if e.Available == Pending {
				result = Pending
			}
		}
		p.entries[d.Name].Available = result
	}
}

func (p *Probe) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, *p.entries[name])
	}
	return out
}

func cloneState(s State) State {
	s.Missing = append([]string(nil), s.Missing...)
	s.FallbacksActive = append([]FallbackUse(nil), s.FallbacksActive...)
	return s
}
