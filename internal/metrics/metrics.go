// Package metrics exposes the engine's state as prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/throughput"
	"github.com/traylinx/perfgov/internal/tier"
)

const namespace = "perfgov"

// Collector records engine events. Its methods match the engine listener so it can be
// registered directly.
type Collector struct {
	registry *prometheus.Registry

	tierIndex       prometheus.Gauge
	tierActive      *prometheus.GaugeVec
	frameRate       prometheus.Gauge
	averageRate     prometheus.Gauge
	transitions     *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	capabilityLevel *prometheus.GaugeVec
	missing         prometheus.Gauge
	sampleRateHist  prometheus.Histogram
}

// New creates a collector on a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a collector registering into reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	c := &Collector{registry: reg}
	factory := promauto.With(reg)

	c.tierIndex = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tier_index",
		Help:      "Index of the active tier, 0 is the lowest",
	})
	c.tierActive = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tier_active",
		Help:      "1 for the active tier, 0 otherwise",
	}, []string{"tier"})
	c.frameRate = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "frame_rate",
		Help:      "Frames counted in the last closed window",
	})
	c.averageRate = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "frame_rate_average",
		Help:      "Smoothed frame rate over the sample history",
	})
	c.transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tier_transitions_total",
		Help:      "Committed tier transitions",
	}, []string{"direction", "reason"})
	c.deliveries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "change_deliveries_total",
		Help:      "Change notification outcomes",
	}, []string{"outcome"})
	c.capabilityLevel = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capability_level",
		Help:      "1 for the derived capability level, 0 otherwise",
	}, []string{"level"})
	c.missing = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capabilities_missing",
		Help:      "Capabilities currently reported missing",
	})
	c.sampleRateHist = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "frame_rate_samples",
		Help:      "Distribution of per-window frame rates",
		Buckets:   []float64{10, 15, 20, 24, 30, 40, 45, 50, 55, 60, 75, 90, 120},
	})
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// SetTier marks t as the active tier.
func (c *Collector) SetTier(t tier.Tier) {
	c.tierIndex.Set(float64(t.Index()))
	for _, other := range tier.Ordered {
		v := 0.0
		if other == t {
			v = 1
		}
		c.tierActive.WithLabelValues(string(other)).Set(v)
	}
}

func (c *Collector) TierChanged(tr tier.Transition, _ string) {
	c.transitions.WithLabelValues(string(tr.Direction), string(tr.Reason)).Inc()
	c.deliveries.WithLabelValues("sent").Inc()
	c.SetTier(tr.To)
}

func (c *Collector) Confirmed(string) {
	c.deliveries.WithLabelValues("confirmed").Inc()
}

func (c *Collector) DeliveryDropped(notify.Record) {
	c.deliveries.WithLabelValues("dropped").Inc()
}

func (c *Collector) CapabilityChanged(state capability.State) {
	active := state.Level()
	for _, level := range []capability.Level{capability.LevelComplete, capability.LevelDegraded, capability.LevelBasic} {
		v := 0.0
		if level == active {
			v = 1
		}
		c.capabilityLevel.WithLabelValues(string(level)).Set(v)
	}
	c.missing.Set(float64(len(state.Missing)))
}

func (c *Collector) Sampled(sample throughput.Sample, average float64) {
	c.frameRate.Set(sample.Rate)
	c.averageRate.Set(average)
	c.sampleRateHist.Observe(sample.Rate)
}
