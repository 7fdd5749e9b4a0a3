package hooks

import (
	"time"

	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/throughput"
	"github.com/traylinx/perfgov/internal/tier"
)

// Publisher turns engine callbacks into bus events. It only queues, so it is safe to call from
// the engine loop.
type Publisher struct {
	bus *EventBus
	now func() time.Time
}

// NewPublisher creates a publisher for bus.
func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

func (p *Publisher) publish(evt HookEvent, data map[string]any) {
	p.bus.PublishAsync(&EventContext{Event: evt, Timestamp: p.now(), Data: data})
}

func (p *Publisher) TierChanged(tr tier.Transition, changeID string) {
	p.publish(EventTierChanged, map[string]any{
		"from":      string(tr.From),
		"to":        string(tr.To),
		"direction": string(tr.Direction),
		"reason":    string(tr.Reason),
		"rate":      tr.Rate,
		"change_id": changeID,
	})
}

func (p *Publisher) Confirmed(changeID string) {
	p.publish(EventDeliveryConfirmed, map[string]any{"change_id": changeID})
}

func (p *Publisher) CapabilityChanged(state capability.State) {
	p.publish(EventCapabilityStateChanged, map[string]any{
		"level":     string(state.Level()),
		"missing":   append([]string(nil), state.Missing...),
		"fallbacks": len(state.FallbacksActive),
	})
}

func (p *Publisher) DeliveryDropped(rec notify.Record) {
	p.publish(EventDeliveryDropped, map[string]any{
		"change_id": rec.ChangeID,
		"retries":   rec.RetryCount,
		"from":      string(rec.Message.From),
		"to":        string(rec.Message.To),
	})
}

func (p *Publisher) Sampled(sample throughput.Sample, average float64) {
	p.publish(EventThroughputSample, map[string]any{
		"rate":    sample.Rate,
		"frames":  sample.Frames,
		"average": average,
	})
}
