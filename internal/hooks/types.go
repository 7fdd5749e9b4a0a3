package hooks

import (
	"time"
)

// HookEvent defines the type of event that can trigger a hook.
type HookEvent string

const (
	EventTierChanged            HookEvent = "tier_changed"
	EventCapabilityStateChanged HookEvent = "capability_state_changed"
	EventDeliveryConfirmed      HookEvent = "delivery_confirmed"
	EventDeliveryDropped        HookEvent = "delivery_dropped"
	EventThroughputSample       HookEvent = "throughput_sample"
)

// AllEvents lists every event the engine publishes.
var AllEvents = []HookEvent{
	EventTierChanged,
	EventCapabilityStateChanged,
	EventDeliveryConfirmed,
	EventDeliveryDropped,
	EventThroughputSample,
}

// HookAction defines the action to be performed when a hook is triggered.
type HookAction string

const (
	ActionLogWarning    HookAction = "log_warning"
	ActionNotifyWebhook HookAction = "notify_webhook"
	ActionForceTier     HookAction = "force_tier"
)

// Hook represents a single automation rule.
type Hook struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Event       HookEvent      `yaml:"event" json:"event"`
	Condition   string         `yaml:"condition" json:"condition"`
	Action      HookAction     `yaml:"action" json:"action"`
	Params      map[string]any `yaml:"params" json:"params"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`

	// FilePath is the source file (not in YAML)
	FilePath string `yaml:"-" json:"-"`
}

// EventContext provides the environment for hook execution.
type EventContext struct {
	Event     HookEvent      `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// ActionHandler is a function that executes a hook action.
type ActionHandler func(hook *Hook, ctx *EventContext) error

// TierSetter is the engine surface the force_tier action drives.
type TierSetter interface {
	SetTier(name string) error
}
