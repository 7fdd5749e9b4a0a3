package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// HookManager loads automation rules from a directory and runs their actions when a matching
// event is published on the bus.
type HookManager struct {
	hooksDir       string
	hooks          map[HookEvent][]*Hook
	disabled       []*Hook
	eventBus       *EventBus
	programs       map[string]*vm.Program
	actionHandlers map[HookAction]ActionHandler
	subscriptions  []*Subscription
	mu             sync.RWMutex

	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
	stopOnce    sync.Once
	reloadDelay time.Duration
}

// NewHookManager creates a new hook manager. An empty hooksDir defaults to ~/.perfgov/hooks.
func NewHookManager(hooksDir string, eventBus *EventBus) (*HookManager, error) {
	if eventBus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if hooksDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			wd, _ := os.Getwd()
			hooksDir = filepath.Join(wd, ".perfgov", "hooks")
		} else {
			hooksDir = filepath.Join(home, ".perfgov", "hooks")
		}
	}

	return &HookManager{
		hooksDir:       hooksDir,
		hooks:          make(map[HookEvent][]*Hook),
		eventBus:       eventBus,
		programs:       make(map[string]*vm.Program),
		actionHandlers: make(map[HookAction]ActionHandler),
		stopWatcher:    make(chan struct{}),
		reloadDelay:    100 * time.Millisecond,
	}, nil
}

// LoadHooks loads all enabled hooks from the hooks directory, replacing the previous set.
// Files that cannot be parsed are logged and skipped.
func (m *HookManager) LoadHooks() error {
	if _, err := os.Stat(m.hooksDir); os.IsNotExist(err) {
		if err := os.MkdirAll(m.hooksDir, 0755); err != nil {
			return fmt.Errorf("failed to create hooks directory: %w", err)
		}
	}

	newHooks := make(map[HookEvent][]*Hook)
	var disabled []*Hook
	err := filepath.Walk(m.hooksDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !(strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.WithField("component", "hooks").Errorf("Failed to read hook file %s: %v", path, err)
			return nil
		}

		var hook Hook
		if err := yaml.Unmarshal(data, &hook); err != nil {
			log.WithField("component", "hooks").Errorf("Failed to parse hook %s: %v", path, err)
			return nil
		}
		if !knownEvent(hook.Event) {
			log.WithField("component", "hooks").Warnf("Hook %s in %s uses unknown event %q", hook.Name, path, hook.Event)
			return nil
		}

		hook.FilePath = path
		if !hook.Enabled {
			disabled = append(disabled, &hook)
			return nil
		}
		newHooks[hook.Event] = append(newHooks[hook.Event], &hook)
		log.WithField("component", "hooks").Debugf("Loaded hook: %s for event %s", hook.Name, hook.Event)
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.hooks = newHooks
	m.disabled = disabled
	m.programs = make(map[string]*vm.Program)
	m.mu.Unlock()

	log.WithField("component", "hooks").Infof("Loaded hooks for %d event types", len(newHooks))
	return nil
}

func knownEvent(evt HookEvent) bool {
	for _, known := range AllEvents {
		if evt == known {
			return true
		}
	}
	return false
}

// SubscribeToAllEvents attaches the manager to every engine event. Reloads only swap the
// rule set, so this is called once.
func (m *HookManager) SubscribeToAllEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subscriptions) > 0 {
		return
	}
	for _, evt := range AllEvents {
		m.subscriptions = append(m.subscriptions, m.eventBus.Subscribe(evt, m.handleEvent))
	}
}

func (m *HookManager) handleEvent(ctx *EventContext) {
	m.mu.RLock()
	hooks := m.hooks[ctx.Event]
	m.mu.RUnlock()

	for _, hook := range hooks {
		matches, err := m.evaluateCondition(hook.Condition, ctx)
		if err != nil {
			log.WithField("component", "hooks").Warnf("Failed to evaluate hook condition '%s': %v", hook.Condition, err)
			continue
		}
		if matches {
			log.WithField("component", "hooks").Infof("Executing hook: %s (Action: %s)", hook.Name, hook.Action)
			go m.executeAction(hook, ctx)
		}
	}
}

func (m *HookManager) evaluateCondition(condition string, ctx *EventContext) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	m.mu.Lock()
	program, exists := m.programs[condition]
	if !exists {
		var err error
		program, err = expr.Compile(condition, expr.AsBool())
		if err != nil {
			m.mu.Unlock()
			return false, err
		}
		m.programs[condition] = program
	}
	m.mu.Unlock()

	env := map[string]any{
		"Event":     string(ctx.Event),
		"Timestamp": ctx.Timestamp,
		"Data":      ctx.Data,
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return boolean")
	}
	return result, nil
}

func (m *HookManager) executeAction(hook *Hook, ctx *EventContext) {
	m.mu.RLock()
	handler, exists := m.actionHandlers[hook.Action]
	m.mu.RUnlock()

	if !exists {
		log.WithField("component", "hooks").Warnf("No handler registered for action: %s", hook.Action)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("component", "hooks").Errorf("Panic in action %s for hook %s: %v", hook.Action, hook.Name, r)
		}
	}()
	if err := handler(hook, ctx); err != nil {
		log.WithField("component", "hooks").Errorf("Action %s failed for hook %s: %v", hook.Action, hook.Name, err)
	}
}

// RegisterAction registers a handler for a specific action type.
func (m *HookManager) RegisterAction(action HookAction, handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionHandlers[action] = handler
}

// StartWatcher starts a background fsnotify watcher for hot-reloading hooks.
func (m *HookManager) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.hooksDir); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.WithField("component", "hooks").Infof("Hooks directory changed (%s), reloading...", event.Name)
					time.Sleep(m.reloadDelay)
					if err := m.LoadHooks(); err != nil {
						log.WithField("component", "hooks").Errorf("Failed to reload hooks: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithField("component", "hooks").Errorf("Hooks watcher error: %v", err)
			case <-m.stopWatcher:
				return
			}
		}
	}()

	return nil
}

// Close stops the file watcher and detaches from the bus.
func (m *HookManager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopWatcher)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = nil
	m.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// HooksDir returns the hooks directory path.
func (m *HookManager) HooksDir() string {
	return m.hooksDir
}

// Hooks returns the enabled hooks.
func (m *HookManager) Hooks() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Hook, 0)
	for _, evt := range AllEvents {
		result = append(result, m.hooks[evt]...)
	}
	return result
}

// AllHooks returns the enabled hooks followed by the disabled ones.
func (m *HookManager) AllHooks() []*Hook {
	result := m.Hooks()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(result, m.disabled...)
}

// Hook returns a hook by ID, enabled or not.
func (m *HookManager) Hook(id string) *Hook {
	for _, h := range m.AllHooks() {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// EvaluateCondition evaluates a hook's condition against ctx without running its action.
func (m *HookManager) EvaluateCondition(h *Hook, ctx *EventContext) (bool, error) {
	return m.evaluateCondition(h.Condition, ctx)
}
