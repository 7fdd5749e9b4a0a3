package throughput

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1_700_000_000, 0)

// renderSecond feeds fps frames evenly spread over the second following start.
func renderSecond(m *Monitor, start time.Time, fps int) (Sample, bool) {
	var (
		sample Sample
		closed bool
	)
	for i := 1; i <= fps; i++ {
		offset := time.Duration(i) * time.Second / time.Duration(fps)
		if s, ok := m.Frame(start.Add(offset)); ok {
			sample, closed = s, true
		}
	}
	return sample, closed
}

func TestMonitor_EmptyAverageIsNominal(t *testing.T) {
	m := NewMonitor(0, 0, epoch)
	assert.Equal(t, DefaultNominalRate, m.Average())
	assert.Equal(t, 0, m.Len())
}

func TestMonitor_ClosesWindowAfterOneSecond(t *testing.T) {
	m := NewMonitor(60, 60, epoch)

	sample, closed := renderSecond(m, epoch, 40)

	require.True(t, closed)
	assert.Equal(t, 40.0, sample.Rate)
	assert.Equal(t, 40.0, m.Average())
}

func TestMonitor_PartialWindowDoesNotSample(t *testing.T) {
	m := NewMonitor(60, 60, epoch)

	_, closed := m.Frame(epoch.Add(500 * time.Millisecond))

	assert.False(t, closed)
	assert.Equal(t, 0, m.Len())
}

func TestMonitor_RingEvictsOldest(t *testing.T) {
	m := NewMonitor(3, 60, epoch)
	now := epoch
	for _, fps := range []int{10, 20, 30, 40} {
		_, closed := renderSecond(m, now, fps)
		require.True(t, closed)
		now = now.Add(time.Second)
	}

	assert.Equal(t, []float64{20, 30, 40}, m.Samples())
	assert.Equal(t, 30.0, m.Average())
}

func TestMonitor_BatchFrames(t *testing.T) {
	m := NewMonitor(60, 60, epoch)

	_, closed := m.Frames(30, epoch.Add(400*time.Millisecond))
	assert.False(t, closed)

	sample, closed := m.Frames(25, epoch.Add(time.Second))
	require.True(t, closed)
	assert.Equal(t, 55.0, sample.Rate)
}

func TestMonitor_LongWindowCountsFrames(t *testing.T) {
	m := NewMonitor(60, 60, epoch)

	sample, closed := m.Frames(120, epoch.Add(4*time.Second))

	require.True(t, closed)
	assert.Equal(t, 120.0, sample.Rate)
	assert.Equal(t, 120, sample.Frames)
}

func TestMonitor_LongWindowIsNormalised(t *testing.T) {
	m := NewMonitor(60, 60, epoch)
	m.SetNormalise(true)

	sample, closed := m.Frames(120, epoch.Add(4*time.Second))

	require.True(t, closed)
	assert.Equal(t, 30.0, sample.Rate)
	assert.Equal(t, 120, sample.Frames)

	// Windows within the tolerance keep the raw count.
	sample, closed = m.Frames(61, epoch.Add(5050*time.Millisecond))
	require.True(t, closed)
	assert.Equal(t, 61.0, sample.Rate)
}

func TestMonitor_SuspendResumeResetsWindow(t *testing.T) {
	m := NewMonitor(60, 60, epoch)
	m.Frames(20, epoch.Add(200*time.Millisecond))

	m.Suspend()
	_, closed := m.Frames(5, epoch.Add(30*time.Second))
	assert.False(t, closed)
	assert.True(t, m.Suspended())

	resumeAt := epoch.Add(60 * time.Second)
	m.Resume(resumeAt)

	// The first frame after resume must not close a window spanning the pause.
	_, closed = m.Frame(resumeAt.Add(10 * time.Millisecond))
	assert.False(t, closed)

	sample, closed := renderSecond(m, resumeAt, 58)
	require.True(t, closed)
	assert.Equal(t, 59.0, sample.Rate, "one extra frame landed at +10ms in the same window")
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor(60, 60, epoch)
	renderSecond(m, epoch, 30)
	m.Reset(epoch.Add(2 * time.Second))

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 60.0, m.Average())
}
