package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/scheduler"
	"github.com/traylinx/perfgov/internal/settings"
	"github.com/traylinx/perfgov/internal/throughput"
	"github.com/traylinx/perfgov/internal/tier"
)

// ErrNotRunning is returned by operations that need a started engine.
var ErrNotRunning = errors.New("engine is not running")

// Engine is the performance governor.
type Engine struct {
	cfg   Config
	sched scheduler.Scheduler
	probe *capability.Probe

	monitor    *throughput.Monitor
	controller *tier.Controller
	applier    *settings.Applier
	notifier   *notify.Notifier
	listeners  []Listener

	running  bool
	stopped  bool
	visible  bool
	snapshot atomic.Pointer[Report]
	state    atomic.Int32
}

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// New assembles an engine. probe and sched are required; the collaborators may be nil.
func New(cfg Config, sched scheduler.Scheduler, probe *capability.Probe, renderer settings.Renderer, compositor settings.Compositor, transport notify.Transport, listeners ...Listener) *Engine {
	e := &Engine{
		cfg:       cfg,
		sched:     sched,
		probe:     probe,
		listeners: listeners,
		visible:   true,
	}
	e.monitor = throughput.NewMonitor(cfg.WindowSize, cfg.NominalRate, sched.Now())
	e.monitor.SetNormalise(cfg.NormaliseRate)
	e.applier = settings.NewApplier(renderer, compositor, probe, cfg.AutoAdjust)
	e.notifier = notify.NewNotifier(cfg.Notifier, transport, sched, e.onDrop)
	e.controller = tier.NewController(cfg.InitialTier, cfg.Policy, e.onCommit)
	e.publish()
	return e
}

// Start detects capabilities, applies the capability override and the initial settings, and
// begins accepting frames. Detection runs on the caller's goroutine.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		return fmt.Errorf("engine already started")
	}

	e.probe.Detect(ctx)

	e.sched.Post(func() {
		now := e.sched.Now()
		state := e.probe.State()
		e.running = true
		e.monitor.Reset(now)
		e.applier.Apply(e.controller.Current())
		e.each(func(l Listener) { l.CapabilityChanged(state) })
		if tr := e.controller.ApplyCapabilityLevel(state.Level(), e.monitor.Average(), now); tr == nil {
			log.WithField("component", "engine").Infof("Engine started at tier %s (%s)", e.controller.Current(), state.Level())
		}
		e.publish()
	})
	return nil
}

// FrameRendered counts one rendered frame.
func (e *Engine) FrameRendered() {
	e.RecordFrames(1)
}

// RecordFrames counts n rendered frames reported in one batch.
func (e *Engine) RecordFrames(n int) {
	if n <= 0 || e.state.Load() != stateRunning {
		return
	}
	e.sched.Post(func() {
		if !e.running {
			return
		}
		now := e.sched.Now()
		sample, closed := e.monitor.Frames(n, now)
		if !closed {
			return
		}
		avg := e.monitor.Average()
		e.each(func(l Listener) { l.Sampled(sample, avg) })
		e.controller.Observe(avg, now)
		e.publish()
	})
}

// SetVisible pauses frame sampling while the host is hidden. Resuming starts a fresh window.
func (e *Engine) SetVisible(visible bool) {
	e.sched.Post(func() {
		if e.visible == visible {
			return
		}
		e.visible = visible
		if visible {
			e.monitor.Resume(e.sched.Now())
		} else {
			e.monitor.Suspend()
		}
		log.WithField("component", "engine").Debugf("Host visibility changed: %v", visible)
		e.publish()
	})
}

// SetTier forces a tier. Unknown names are rejected without touching any state.
func (e *Engine) SetTier(name string) error {
	if _, err := tier.Parse(name); err != nil {
		log.WithField("component", "engine").Warnf("Ignoring tier override: %v", err)
		return err
	}
	if e.state.Load() == stateStopped {
		return ErrNotRunning
	}
	e.sched.Post(func() {
		if e.stopped {
			return
		}
		tr, err := e.controller.SetTier(name, e.monitor.Average(), e.sched.Now())
		if err == nil && tr == nil {
			e.applier.Apply(e.controller.Current())
		}
		e.publish()
	})
	return nil
}

// SetAutoAdjust toggles rendering-mode recommendations and re-applies the current tier.
func (e *Engine) SetAutoAdjust(enabled bool) {
	e.sched.Post(func() {
		if e.stopped {
			return
		}
		e.applier.SetAutoAdjust(enabled)
		e.applier.Apply(e.controller.Current())
		e.publish()
	})
}

// UpdateCapability records the result of a late capability check and re-evaluates tier
// eligibility against the new state. The loop reads the probe state when the task runs, so
// concurrent updates always settle on the probe's latest state.
func (e *Engine) UpdateCapability(name string, avail capability.Availability) error {
	if _, ok := e.probe.UpdateCapability(name, avail); !ok {
		return fmt.Errorf("%w: %s", capability.ErrUnknownCapability, name)
	}
	e.sched.Post(func() {
		if e.stopped {
			return
		}
		state := e.probe.State()
		e.each(func(l Listener) { l.CapabilityChanged(state) })
		if !e.running {
			e.publish()
			return
		}
		if tr := e.controller.ApplyCapabilityLevel(state.Level(), e.monitor.Average(), e.sched.Now()); tr == nil {
			// Optional features such as physics follow their capability.
			e.applier.Apply(e.controller.Current())
		}
		e.publish()
	})
	return nil
}

// Confirm acknowledges a delivered change. Unknown ids are ignored.
func (e *Engine) Confirm(changeID string) {
	e.sched.Post(func() {
		if e.notifier.Confirm(changeID) {
			e.each(func(l Listener) { l.Confirmed(changeID) })
			e.publish()
		}
	})
}

// Report returns the latest snapshot.
func (e *Engine) Report() Report {
	r := *e.snapshot.Load()
	r.Capabilities = e.probe.Report()
	return r
}

// Stop releases every timer and stops sampling. It waits up to timeout for the loop to
// process the teardown.
func (e *Engine) Stop(timeout time.Duration) error {
	if e.state.Swap(stateStopped) == stateStopped {
		return nil
	}
	done := make(chan struct{})
	e.sched.Post(func() {
		defer close(done)
		e.running = false
		e.stopped = true
		e.monitor.Suspend()
		e.notifier.Close()
		e.publish()
		log.WithField("component", "engine").Info("Engine stopped")
	})

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		log.WithField("component", "engine").Warn("Engine stop timed out waiting for loop")
		return fmt.Errorf("engine stop timed out after %s", timeout)
	}
}

func (e *Engine) onCommit(tr tier.Transition) {
	e.applier.Apply(tr.To)
	id := e.notifier.Notify(tr)
	e.each(func(l Listener) { l.TierChanged(tr, id) })
}

func (e *Engine) onDrop(rec notify.Record) {
	e.each(func(l Listener) { l.DeliveryDropped(rec) })
	e.publish()
}

func (e *Engine) each(fn func(Listener)) {
	for _, l := range e.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("component", "engine").Errorf("Panic in engine listener: %v", r)
				}
			}()
			fn(l)
		}()
	}
}

// publish refreshes the lock-free snapshot. Only the loop calls it.
func (e *Engine) publish() {
	st := e.controller.State()
	r := &Report{
		Tier:       st.Current,
		Settings:   tier.SettingsFor(st.Current),
		Pending:    st.Pending,
		LastCommit: st.LastCommit,
		Average:    e.monitor.Average(),
		Samples:    e.monitor.Samples(),
		Visible:    e.visible,
		AutoAdjust: e.applier.AutoAdjust(),
		Running:    e.running,
		Deliveries: e.notifier.Pending(),
		UpdatedAt:  e.sched.Now(),
	}
	if applied, ok := e.applier.Last(); ok {
		r.Applied = &applied
	}
	e.snapshot.Store(r)
}
