package tier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/perfgov/internal/capability"
)

type commitRecorder struct {
	commits []Transition
}

func (r *commitRecorder) record(tr Transition) {
	r.commits = append(r.commits, tr)
}

func TestController_ObserveCommitsThroughCallback(t *testing.T) {
	rec := &commitRecorder{}
	c := NewController(High, DefaultPolicy(), rec.record)

	c.Observe(40, t0)
	c.Observe(40, t0.Add(time.Second))
	assert.Empty(t, rec.commits)

	tr := c.Observe(40, t0.Add(3*time.Second))
	require.NotNil(t, tr)
	require.Len(t, rec.commits, 1)
	assert.Equal(t, Medium, rec.commits[0].To)
	assert.Equal(t, Medium, c.Current())
}

func TestController_SetTierUnknownIsIgnored(t *testing.T) {
	rec := &commitRecorder{}
	c := NewController(High, DefaultPolicy(), rec.record)
	before := c.State()

	tr, err := c.SetTier("nonexistent", 60, t0)

	assert.ErrorIs(t, err, ErrUnknownTier)
	assert.Nil(t, tr)
	assert.Empty(t, rec.commits)
	assert.Equal(t, before, c.State())
}

func TestController_SetTierBypassesHysteresis(t *testing.T) {
	rec := &commitRecorder{}
	c := NewController(High, DefaultPolicy(), rec.record)
	c.Observe(40, t0)
	require.NotNil(t, c.State().Pending)

	tr, err := c.SetTier("very_low", 40, t0.Add(time.Second))

	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, VeryLow, tr.To)
	assert.Equal(t, Down, tr.Direction)
	assert.Equal(t, ReasonManual, tr.Reason)
	assert.Nil(t, c.State().Pending)
	assert.Equal(t, t0.Add(time.Second), c.State().LastCommit)
	assert.Len(t, rec.commits, 1)
}

func TestController_SetTierSameTier(t *testing.T) {
	rec := &commitRecorder{}
	c := NewController(High, DefaultPolicy(), rec.record)

	tr, err := c.SetTier("high", 60, t0)

	assert.NoError(t, err)
	assert.Nil(t, tr)
	assert.Empty(t, rec.commits)
}

func TestController_CapabilityOverride(t *testing.T) {
	rec := &commitRecorder{}
	c := NewController(Ultra, DefaultPolicy(), rec.record)

	tr := c.ApplyCapabilityLevel(capability.LevelComplete, 60, t0)
	assert.Nil(t, tr)

	tr = c.ApplyCapabilityLevel(capability.LevelDegraded, 60, t0)
	require.NotNil(t, tr)
	assert.Equal(t, Medium, tr.To)
	assert.Equal(t, ReasonCapability, tr.Reason)

	// Degraded below the top two leaves the tier alone.
	tr = c.ApplyCapabilityLevel(capability.LevelDegraded, 60, t0)
	assert.Nil(t, tr)

	tr = c.ApplyCapabilityLevel(capability.LevelBasic, 60, t0)
	require.NotNil(t, tr)
	assert.Equal(t, VeryLow, tr.To)

	tr = c.ApplyCapabilityLevel(capability.LevelBasic, 60, t0)
	assert.Nil(t, tr)
	assert.Len(t, rec.commits, 2)
}

func TestController_InvalidInitialFallsBackToMidpoint(t *testing.T) {
	c := NewController(Tier("bogus"), DefaultPolicy(), nil)
	assert.Equal(t, Medium, c.Current())
}

func TestController_PanickingCommitHandlerIsContained(t *testing.T) {
	c := NewController(High, DefaultPolicy(), func(Transition) { panic("renderer gone") })

	assert.NotPanics(t, func() {
		_, _ = c.SetTier("low", 30, t0)
	})
	assert.Equal(t, Low, c.Current())
}
