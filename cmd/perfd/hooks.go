package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/traylinx/perfgov/internal/config"
	"github.com/traylinx/perfgov/internal/hooks"
	"github.com/traylinx/perfgov/internal/util"
	"gopkg.in/yaml.v3"
)

// HooksCommand represents available hooks subcommands
type HooksCommand string

const (
	HooksList    HooksCommand = "list"
	HooksEnable  HooksCommand = "enable"
	HooksDisable HooksCommand = "disable"
	HooksTest    HooksCommand = "test"
	HooksReload  HooksCommand = "reload"
)

// HooksOptions holds the command-line options for hooks commands
type HooksOptions struct {
	Command HooksCommand
	Config  string
	HookID  string
	Event   string
	Data    string // JSON data for test
	Format  string
}

// ParseHooksCommand parses command arguments
func ParseHooksCommand(args []string) (*HooksOptions, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing subcommand")
	}

	opts := &HooksOptions{Command: HooksCommand(args[0])}
	flagSet := flag.NewFlagSet("hooks", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	flagSet.StringVar(&opts.Config, "config", "config.yaml", "Configure File Path")
	flagSet.StringVar(&opts.HookID, "id", "", "Target hook ID")
	flagSet.StringVar(&opts.Event, "event", string(hooks.EventTierChanged), "Event type for test")
	flagSet.StringVar(&opts.Data, "data", "{}", "JSON data payload for test")
	flagSet.StringVar(&opts.Format, "format", "table", "Output format (table/json)")

	if err := flagSet.Parse(args[1:]); err != nil {
		return nil, err
	}
	return opts, nil
}

func printHooksUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: perfd hooks <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  list           List all configured hooks")
	fmt.Fprintln(w, "  enable         Enable a hook by ID")
	fmt.Fprintln(w, "  disable        Disable a hook by ID")
	fmt.Fprintln(w, "  test           Test hook conditions against a simulated event")
	fmt.Fprintln(w, "  reload         Reload hooks from disk and report the result")
	fmt.Fprintln(w, "\nOptions:")
	fmt.Fprintln(w, "  --config <str> Config file")
	fmt.Fprintln(w, "  --id <str>     Hook ID")
	fmt.Fprintln(w, "  --event <str>  Event type")
	fmt.Fprintln(w, "  --data <json>  Simulated event data (JSON)")
	fmt.Fprintln(w, "  --format <str> Output format")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  perfd hooks list --format json")
	fmt.Fprintln(w, "  perfd hooks disable --id low-rate-alert")
	fmt.Fprintln(w, "  perfd hooks test --event throughput_sample --data '{\"rate\":22}'")
}

func handleHooksCommand(args []string) {
	opts, err := ParseHooksCommand(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		printHooksUsage(os.Stdout)
		os.Exit(1)
	}

	cfg, err := config.LoadConfigOptional(opts.Config, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	manager, err := getHookManager(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	if err := runHooksCommand(os.Stdout, manager, opts); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func runHooksCommand(w io.Writer, manager *hooks.HookManager, opts *HooksOptions) error {
	switch opts.Command {
	case HooksList:
		return doHooksList(w, manager, opts)
	case HooksEnable:
		return doHooksEnableDisable(w, manager, opts, true)
	case HooksDisable:
		return doHooksEnableDisable(w, manager, opts, false)
	case HooksTest:
		return doHooksTest(w, manager, opts)
	case HooksReload:
		return doHooksReload(w, manager)
	default:
		printHooksUsage(w)
		return fmt.Errorf("unknown command: %s", opts.Command)
	}
}

// getHookManager loads hooks without an engine attached; actions are never executed here.
func getHookManager(cfg *config.Config) (*hooks.HookManager, error) {
	bus := hooks.NewEventBus(1)
	manager, err := hooks.NewHookManager(cfg.Hooks.Dir, bus)
	if err != nil {
		bus.Shutdown()
		return nil, err
	}
	if err := manager.LoadHooks(); err != nil {
		return nil, err
	}
	return manager, nil
}

func doHooksList(w io.Writer, manager *hooks.HookManager, opts *HooksOptions) error {
	allHooks := manager.AllHooks()

	if len(allHooks) == 0 {
		fmt.Fprintln(w, "No hooks configured.")
		fmt.Fprintf(w, "Create hook files in: %s\n", manager.HooksDir())
		return nil
	}

	if opts.Format == "json" {
		data, err := json.MarshalIndent(allHooks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintln(w, "Configured Hooks")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Hooks Directory: %s\n", manager.HooksDir())
	fmt.Fprintf(w, "Total Hooks: %d\n\n", len(allHooks))

	for i, hook := range allHooks {
		status := "enabled"
		if !hook.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(w, "[%d] %s\n", i+1, hook.Name)
		fmt.Fprintf(w, "    ID: %s\n", hook.ID)
		fmt.Fprintf(w, "    Status: %s\n", status)
		fmt.Fprintf(w, "    Event: %s\n", hook.Event)
		fmt.Fprintf(w, "    Action: %s\n", hook.Action)
		if hook.Condition != "" {
			fmt.Fprintf(w, "    Condition: %s\n", hook.Condition)
		}
		if len(hook.Params) > 0 {
			fmt.Fprintf(w, "    Parameters: %v\n", hook.Params)
		}
		fmt.Fprintf(w, "    File: %s\n\n", hook.FilePath)
	}
	return nil
}

func doHooksEnableDisable(w io.Writer, manager *hooks.HookManager, opts *HooksOptions, enable bool) error {
	if opts.HookID == "" {
		return fmt.Errorf("--id required")
	}

	hook := manager.Hook(opts.HookID)
	if hook == nil {
		return fmt.Errorf("hook with ID '%s' not found", opts.HookID)
	}

	data, err := os.ReadFile(hook.FilePath)
	if err != nil {
		return fmt.Errorf("reading hook file: %w", err)
	}

	var hookData map[string]interface{}
	if err := yaml.Unmarshal(data, &hookData); err != nil {
		return fmt.Errorf("parsing hook file: %w", err)
	}
	hookData["enabled"] = enable

	if err := util.WriteYAMLAtomic(hook.FilePath, hookData, 0o644); err != nil {
		return fmt.Errorf("writing hook file: %w", err)
	}

	action := "Enabled"
	if !enable {
		action = "Disabled"
	}
	fmt.Fprintf(w, "%s hook '%s' (%s)\n", action, hook.Name, opts.HookID)
	fmt.Fprintf(w, "  File: %s\n", hook.FilePath)
	return nil
}

func doHooksTest(w io.Writer, manager *hooks.HookManager, opts *HooksOptions) error {
	evType := hooks.HookEvent(opts.Event)

	var dataMap map[string]any
	if err := json.Unmarshal([]byte(opts.Data), &dataMap); err != nil {
		return fmt.Errorf("parsing data JSON: %w", err)
	}

	ctx := &hooks.EventContext{
		Event:     evType,
		Timestamp: time.Now(),
		Data:      dataMap,
	}

	allHooks := manager.AllHooks()
	if opts.HookID != "" {
		hook := manager.Hook(opts.HookID)
		if hook == nil {
			return fmt.Errorf("hook with ID '%s' not found", opts.HookID)
		}
		allHooks = []*hooks.Hook{hook}
	}
	if len(allHooks) == 0 {
		fmt.Fprintln(w, "No hooks configured to test.")
		return nil
	}

	fmt.Fprintf(w, "Event Type: %s\n", evType)
	fmt.Fprintf(w, "Event Data: %s\n\n", opts.Data)

	matched, failed := 0, 0
	for i, hook := range allHooks {
		fmt.Fprintf(w, "[%d] %s (%s)\n", i+1, hook.Name, hook.ID)

		switch {
		case hook.Event != evType:
			fmt.Fprintf(w, "    Result: event type mismatch (expects %s)\n\n", hook.Event)
			continue
		case !hook.Enabled:
			fmt.Fprintf(w, "    Result: hook is disabled\n\n")
			continue
		}

		ok, err := manager.EvaluateCondition(hook, ctx)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(w, "    Result: condition evaluation failed: %v\n\n", err)
		case ok:
			matched++
			fmt.Fprintf(w, "    Result: would execute action %s\n\n", hook.Action)
		default:
			fmt.Fprintf(w, "    Result: condition not met\n\n")
		}
	}

	fmt.Fprintf(w, "Tested: %d, Matched: %d, Failed: %d\n", len(allHooks), matched, failed)
	return nil
}

func doHooksReload(w io.Writer, manager *hooks.HookManager) error {
	if err := manager.LoadHooks(); err != nil {
		return fmt.Errorf("failed to reload hooks: %w", err)
	}

	allHooks := manager.AllHooks()
	enabled := 0
	for _, hook := range allHooks {
		if hook.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(w, "Reloaded hooks from %s\n", manager.HooksDir())
	fmt.Fprintf(w, "  Total hooks: %d\n", len(allHooks))
	fmt.Fprintf(w, "  Enabled hooks: %d\n", enabled)
	return nil
}
