package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/scheduler"
	"github.com/traylinx/perfgov/internal/settings"
	"github.com/traylinx/perfgov/internal/throughput"
	"github.com/traylinx/perfgov/internal/tier"
)

var t0 = time.Unix(1_700_000_000, 0)

type fakeRenderer struct {
	scale   float64
	effects tier.EffectsLevel
	physics bool
}

func (f *fakeRenderer) SetResolutionScale(scale float64)        { f.scale = scale }
func (f *fakeRenderer) SetEffectsLevel(level tier.EffectsLevel) { f.effects = level }
func (f *fakeRenderer) SetAdvancedAnimations(bool)              {}
func (f *fakeRenderer) SetPhysics(enabled bool)                 { f.physics = enabled }
func (f *fakeRenderer) SetLipSync(bool)                         {}

type fakeCompositor struct{ mode settings.RenderingMode }

func (f *fakeCompositor) SetRenderingMode(mode settings.RenderingMode) { f.mode = mode }

type fakeTransport struct {
	mu   sync.Mutex
	sent []*notify.Message
}

func (f *fakeTransport) Send(_ context.Context, msg *notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) IsConnected() bool { return true }

type recorder struct {
	transitions []tier.Transition
	ids         []string
	states      []capability.State
	confirmed   []string
	dropped     []notify.Record
	samples     []throughput.Sample
}

func (r *recorder) TierChanged(tr tier.Transition, id string) {
	r.transitions = append(r.transitions, tr)
	r.ids = append(r.ids, id)
}
func (r *recorder) Confirmed(id string)                    { r.confirmed = append(r.confirmed, id) }
func (r *recorder) CapabilityChanged(s capability.State)   { r.states = append(r.states, s) }
func (r *recorder) DeliveryDropped(rec notify.Record)      { r.dropped = append(r.dropped, rec) }
func (r *recorder) Sampled(s throughput.Sample, _ float64) { r.samples = append(r.samples, s) }

func static(a capability.Availability) capability.CheckFunc {
	return func(context.Context) (capability.Availability, error) { return a, nil }
}

func testSpecs() []capability.Spec {
	return []capability.Spec{
		{Name: capability.RenderV2, Required: true, Fallback: capability.RenderV1, Check: static(capability.Available)},
		{Name: capability.RenderV1, Required: true, Fallback: "software", Check: static(capability.Available)},
		{Name: capability.SDK, Required: true, Check: static(capability.Available)},
		{Name: capability.Model, Required: true, Fallback: "placeholder_model", Check: static(capability.Pending)},
		{Name: capability.Physics, Required: false, Check: static(capability.Available)},
	}
}

type harness struct {
	engine     *Engine
	sched      *scheduler.Manual
	renderer   *fakeRenderer
	compositor *fakeCompositor
	transport  *fakeTransport
	events     *recorder
}

func newHarness(t *testing.T, specs []capability.Spec) *harness {
	t.Helper()
	h := &harness{
		sched:      scheduler.NewManual(t0),
		renderer:   &fakeRenderer{},
		compositor: &fakeCompositor{},
		transport:  &fakeTransport{},
		events:     &recorder{},
	}
	probe := capability.NewProbe(capability.DefaultProbeConfig(), specs, capability.DefaultDerived())
	h.engine = New(DefaultConfig(), h.sched, probe, h.renderer, h.compositor, h.transport, h.events)
	require.NoError(t, h.engine.Start(context.Background()))
	return h
}

// render feeds fps evenly spaced frames per second for the given number of seconds.
func (h *harness) render(fps, seconds int) {
	step := time.Second / time.Duration(fps)
	for s := 0; s < seconds; s++ {
		for i := 0; i < fps; i++ {
			h.sched.Advance(step)
			h.engine.FrameRendered()
		}
	}
}

func TestEngine_StartAppliesInitialTier(t *testing.T) {
	h := newHarness(t, testSpecs())

	r := h.engine.Report()
	assert.True(t, r.Running)
	assert.Equal(t, tier.High, r.Tier)
	assert.Equal(t, 1.0, h.renderer.scale)
	assert.True(t, h.renderer.physics)
	assert.Equal(t, settings.Mode3D, h.compositor.mode)
	assert.Equal(t, capability.LevelComplete, r.Capabilities.Level)
	assert.Equal(t, throughput.DefaultNominalRate, r.Average)
	require.Len(t, h.events.states, 1)
}

func TestEngine_SustainedLowRateDowngradesOnce(t *testing.T) {
	h := newHarness(t, testSpecs())

	h.render(40, 3)
	r := h.engine.Report()
	assert.Equal(t, tier.High, r.Tier)
	require.NotNil(t, r.Pending)
	assert.Equal(t, tier.Down, r.Pending.Direction)

	h.render(40, 1)
	r = h.engine.Report()
	assert.Equal(t, tier.Medium, r.Tier)
	assert.Nil(t, r.Pending)
	assert.Equal(t, 0.85, h.renderer.scale)
	assert.Equal(t, settings.Mode25D, h.compositor.mode)

	require.Len(t, h.events.transitions, 1)
	assert.Equal(t, tier.ReasonThroughput, h.events.transitions[0].Reason)
	require.Len(t, h.transport.sent, 1)
	msg := h.transport.sent[0]
	assert.Equal(t, notify.ActionDowngrade, msg.Action)
	assert.Equal(t, h.events.ids[0], msg.ChangeID)
	assert.Len(t, h.events.samples, 4)

	// Cooldown holds the tier even though the rate stays low.
	h.render(40, 5)
	assert.Equal(t, tier.Medium, h.engine.Report().Tier)
}

func TestEngine_ConfirmClearsDelivery(t *testing.T) {
	h := newHarness(t, testSpecs())
	require.NoError(t, h.engine.SetTier(string(tier.Low)))

	r := h.engine.Report()
	require.Len(t, r.Deliveries, 1)
	assert.Equal(t, tier.Low, r.Tier)

	h.engine.Confirm(r.Deliveries[0].ChangeID)
	h.engine.Confirm(r.Deliveries[0].ChangeID)
	assert.Empty(t, h.engine.Report().Deliveries)
	assert.Equal(t, []string{r.Deliveries[0].ChangeID}, h.events.confirmed)
	assert.Equal(t, 0, h.sched.Pending())
}

func TestEngine_UnconfirmedDeliveryIsDropped(t *testing.T) {
	h := newHarness(t, testSpecs())
	require.NoError(t, h.engine.SetTier(string(tier.Low)))

	h.sched.Advance(time.Minute)

	require.Len(t, h.events.dropped, 1)
	assert.Len(t, h.transport.sent, 3)
	assert.Empty(t, h.engine.Report().Deliveries)
}

func TestEngine_UnknownTierIsRejected(t *testing.T) {
	h := newHarness(t, testSpecs())

	err := h.engine.SetTier("turbo")

	assert.ErrorIs(t, err, tier.ErrUnknownTier)
	assert.Equal(t, tier.High, h.engine.Report().Tier)
	assert.Empty(t, h.transport.sent)
}

func TestEngine_SameTierReappliesWithoutNotification(t *testing.T) {
	h := newHarness(t, testSpecs())
	h.renderer.scale = 0

	require.NoError(t, h.engine.SetTier(string(tier.High)))

	assert.Equal(t, 1.0, h.renderer.scale)
	assert.Empty(t, h.transport.sent)
}

func TestEngine_HiddenHostPausesSampling(t *testing.T) {
	h := newHarness(t, testSpecs())

	h.engine.SetVisible(false)
	h.render(10, 10)
	r := h.engine.Report()
	assert.False(t, r.Visible)
	assert.Empty(t, h.events.samples)
	assert.Equal(t, tier.High, r.Tier)

	h.engine.SetVisible(true)
	h.render(50, 2)
	assert.Len(t, h.events.samples, 2)
	assert.True(t, h.engine.Report().Visible)
}

func TestEngine_LateCapabilityLossForcesDowngrade(t *testing.T) {
	h := newHarness(t, testSpecs())

	require.NoError(t, h.engine.UpdateCapability(capability.RenderV2, capability.Unavailable))

	r := h.engine.Report()
	assert.Equal(t, tier.Medium, r.Tier)
	assert.Equal(t, capability.LevelDegraded, r.Capabilities.Level)
	require.Len(t, h.events.transitions, 1)
	assert.Equal(t, tier.ReasonCapability, h.events.transitions[0].Reason)
}

// heldScheduler queues posted tasks while hold is set so a test can run them in any order.
type heldScheduler struct {
	*scheduler.Manual
	hold   bool
	queued []func()
}

func (s *heldScheduler) Post(fn func()) {
	if s.hold {
		s.queued = append(s.queued, fn)
		return
	}
	s.Manual.Post(fn)
}

func (s *heldScheduler) runReversed() {
	for i := len(s.queued) - 1; i >= 0; i-- {
		s.queued[i]()
	}
	s.queued = nil
}

func TestEngine_ReorderedCapabilityUpdatesSettleOnLatestState(t *testing.T) {
	sched := &heldScheduler{Manual: scheduler.NewManual(t0)}
	events := &recorder{}
	caps := capability.NewProbe(capability.DefaultProbeConfig(), testSpecs(), capability.DefaultDerived())
	eng := New(DefaultConfig(), sched, caps, &fakeRenderer{}, &fakeCompositor{}, &fakeTransport{}, events)
	require.NoError(t, eng.Start(context.Background()))
	require.Equal(t, tier.High, eng.Report().Tier)

	sched.hold = true
	require.NoError(t, eng.UpdateCapability(capability.SDK, capability.Unavailable))
	require.NoError(t, eng.UpdateCapability(capability.SDK, capability.Available))
	require.Len(t, sched.queued, 2)

	// The task of the first update runs last.
	sched.hold = false
	sched.runReversed()

	assert.Equal(t, capability.LevelComplete, caps.State().Level())
	require.NotEmpty(t, events.states)
	assert.Equal(t, capability.LevelComplete, events.states[len(events.states)-1].Level())
	assert.Empty(t, events.transitions)
	assert.Equal(t, tier.High, eng.Report().Tier)
}

func TestEngine_OptionalCapabilityLossReappliesSettings(t *testing.T) {
	h := newHarness(t, testSpecs())
	require.True(t, h.renderer.physics)

	require.NoError(t, h.engine.UpdateCapability(capability.Physics, capability.Unavailable))

	assert.False(t, h.renderer.physics)
	assert.Equal(t, tier.High, h.engine.Report().Tier)
}

func TestEngine_UnknownCapabilityIsRejected(t *testing.T) {
	h := newHarness(t, testSpecs())

	err := h.engine.UpdateCapability("teleport", capability.Available)

	assert.ErrorIs(t, err, capability.ErrUnknownCapability)
}

func TestEngine_BasicStartPinsLowestTier(t *testing.T) {
	specs := capability.WithCheck(testSpecs(), capability.SDK, static(capability.Unavailable))
	h := newHarness(t, specs)

	assert.Equal(t, tier.VeryLow, h.engine.Report().Tier)
	assert.Equal(t, 0.5, h.renderer.scale)
}

func TestEngine_StopReleasesTimers(t *testing.T) {
	h := newHarness(t, testSpecs())
	require.NoError(t, h.engine.SetTier(string(tier.Low)))
	require.Equal(t, 1, h.sched.Pending())

	require.NoError(t, h.engine.Stop(time.Second))

	assert.Equal(t, 0, h.sched.Pending())
	assert.False(t, h.engine.Report().Running)
	assert.ErrorIs(t, h.engine.SetTier(string(tier.High)), ErrNotRunning)

	h.render(10, 2)
	assert.Empty(t, h.events.samples)
	assert.NoError(t, h.engine.Stop(time.Second))
}

func TestEngine_StartTwiceFails(t *testing.T) {
	h := newHarness(t, testSpecs())
	assert.Error(t, h.engine.Start(context.Background()))
}
