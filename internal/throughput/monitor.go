// Package throughput measures rendering throughput as frames per one-second window and keeps
// a bounded rolling history of those samples.
package throughput

import (
	"math"
	"time"
)

const (
	// DefaultWindowSize is the number of per-second samples kept.
	DefaultWindowSize = 60

	// DefaultNominalRate is reported while no window has completed yet.
	DefaultNominalRate = 60.0

	// SampleInterval is the length of one measurement window.
	SampleInterval = time.Second
)

// Sample is one closed measurement window.
type Sample struct {
	Rate   float64   `json:"rate"`
	Frames int       `json:"frames"`
	At     time.Time `json:"at"`
}

// Monitor counts frames and turns them into per-second rate samples. It is not safe for
// concurrent use; the owner serialises calls.
type Monitor struct {
	nominal   float64
	normalise bool

	ring  []float64
	head  int
	count int

	frames    int
	lastReset time.Time
	suspended bool
}

// NewMonitor creates a monitor keeping up to size samples. now starts the first window.
func NewMonitor(size int, nominal float64, now time.Time) *Monitor {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if nominal <= 0 {
		nominal = DefaultNominalRate
	}
	return &Monitor{
		nominal:   nominal,
		ring:      make([]float64, size),
		lastReset: now,
	}
}

// SetNormalise controls whether windows that ran long are rescaled to a per-second rate.
// It is off by default, so a sample is the raw frame count of its window.
func (m *Monitor) SetNormalise(enabled bool) {
	m.normalise = enabled
}

// Frame records one rendered frame. It returns the closed sample when the frame completed a
// measurement window.
func (m *Monitor) Frame(now time.Time) (Sample, bool) {
	return m.Frames(1, now)
}

// Frames records n rendered frames at once, for renderers that report in batches.
func (m *Monitor) Frames(n int, now time.Time) (Sample, bool) {
	if m.suspended || n <= 0 {
		return Sample{}, false
	}
	m.frames += n

	elapsed := now.Sub(m.lastReset)
	if elapsed < SampleInterval {
		return Sample{}, false
	}

	// The sample is the frame count of the window. With normalisation on, a window longer
	// than one second (stalled host) is scaled back to a per-second rate.
	rate := float64(m.frames)
	if m.normalise && elapsed > SampleInterval+SampleInterval/10 {
		rate = math.Round(float64(m.frames) / elapsed.Seconds())
	}

	sample := Sample{Rate: rate, Frames: m.frames, At: now}
	m.push(rate)
	m.frames = 0
	m.lastReset = now
	return sample, true
}

func (m *Monitor) push(rate float64) {
	m.ring[m.head] = rate
	m.head = (m.head + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
}

// Average returns the arithmetic mean of the history, or the nominal rate when it is empty.
func (m *Monitor) Average() float64 {
	if m.count == 0 {
		return m.nominal
	}
	var sum float64
	for _, r := range m.Samples() {
		sum += r
	}
	return sum / float64(m.count)
}

// Samples returns the history, oldest first.
func (m *Monitor) Samples() []float64 {
	out := make([]float64, 0, m.count)
	start := (m.head - m.count + len(m.ring)) % len(m.ring)
	for i := 0; i < m.count; i++ {
		out = append(out, m.ring[(start+i)%len(m.ring)])
	}
	return out
}

// Len returns the number of samples held.
func (m *Monitor) Len() int {
	return m.count
}

// Suspend stops counting frames, e.g. while the host window is hidden.
func (m *Monitor) Suspend() {
	m.suspended = true
}

// Resume restarts counting with a fresh window so the paused period never reads as a
// throughput collapse.
func (m *Monitor) Resume(now time.Time) {
	m.suspended = false
	m.frames = 0
	m.lastReset = now
}

// Suspended reports whether frames are being ignored.
func (m *Monitor) Suspended() bool {
	return m.suspended
}

// Reset drops the history and restarts the window.
func (m *Monitor) Reset(now time.Time) {
	m.head = 0
	m.count = 0
	m.frames = 0
	m.lastReset = now
}
