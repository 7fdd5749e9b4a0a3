package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/perfgov/internal/config"
	"github.com/traylinx/perfgov/internal/journal"
	"github.com/traylinx/perfgov/internal/tier"
)

const lowRateHook = `id: low-rate
name: Low rate alert
event: throughput_sample
condition: Data.rate < 30
action: log_warning
enabled: true
`

func newCLIManager(t *testing.T, files map[string]string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	cfg := config.Default()
	cfg.Hooks.Dir = dir
	return cfg, dir
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	opts, err := ParseHooksCommand(args)
	require.NoError(t, err)

	manager, err := getHookManager(cfg)
	require.NoError(t, err)
	defer manager.Close()

	var out bytes.Buffer
	err = runHooksCommand(&out, manager, opts)
	return out.String(), err
}

func TestParseHooksCommand(t *testing.T) {
	_, err := ParseHooksCommand(nil)
	assert.Error(t, err)

	opts, err := ParseHooksCommand([]string{"test", "--event", "delivery_dropped", "--data", `{"retries":3}`})
	require.NoError(t, err)
	assert.Equal(t, HooksTest, opts.Command)
	assert.Equal(t, "delivery_dropped", opts.Event)
	assert.Equal(t, `{"retries":3}`, opts.Data)
	assert.Equal(t, "table", opts.Format)
}

func TestHooksList(t *testing.T) {
	cfg, _ := newCLIManager(t, map[string]string{"low.yaml": lowRateHook})

	out, err := runCLI(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Low rate alert")
	assert.Contains(t, out, "Status: enabled")

	out, err = runCLI(t, cfg, "list", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "low-rate"`)
}

func TestHooksListEmpty(t *testing.T) {
	cfg, dir := newCLIManager(t, nil)

	out, err := runCLI(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No hooks configured.")
	assert.Contains(t, out, dir)
}

func TestHooksDisableThenEnable(t *testing.T) {
	cfg, dir := newCLIManager(t, map[string]string{"low.yaml": lowRateHook})

	_, err := runCLI(t, cfg, "disable", "--id", "low-rate")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "low.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "enabled: false")

	out, err := runCLI(t, cfg, "enable", "--id", "low-rate")
	require.NoError(t, err)
	assert.Contains(t, out, "Enabled hook")
	data, err = os.ReadFile(filepath.Join(dir, "low.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "enabled: true")

	_, err = runCLI(t, cfg, "enable")
	assert.Error(t, err)
	_, err = runCLI(t, cfg, "enable", "--id", "missing")
	assert.Error(t, err)
}

func TestHooksTest(t *testing.T) {
	cfg, _ := newCLIManager(t, map[string]string{"low.yaml": lowRateHook})

	out, err := runCLI(t, cfg, "test", "--event", "throughput_sample", "--data", `{"rate":22}`)
	require.NoError(t, err)
	assert.Contains(t, out, "would execute action log_warning")
	assert.Contains(t, out, "Matched: 1")

	out, err = runCLI(t, cfg, "test", "--event", "throughput_sample", "--data", `{"rate":55}`)
	require.NoError(t, err)
	assert.Contains(t, out, "condition not met")

	out, err = runCLI(t, cfg, "test", "--event", "tier_changed")
	require.NoError(t, err)
	assert.Contains(t, out, "event type mismatch")

	_, err = runCLI(t, cfg, "test", "--data", "{broken")
	assert.Error(t, err)
}

func TestHooksReloadAndUnknown(t *testing.T) {
	cfg, _ := newCLIManager(t, map[string]string{"low.yaml": lowRateHook})

	out, err := runCLI(t, cfg, "reload")
	require.NoError(t, err)
	assert.Contains(t, out, "Total hooks: 1")

	out, err = runCLI(t, cfg, "explode")
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(out, "Usage: perfd hooks"))
}

func TestPrintHistory(t *testing.T) {
	entries := []journal.Entry{{
		ID:        1,
		ChangeID:  "downgrade_medium_1",
		From:      tier.High,
		To:        tier.Medium,
		Direction: tier.Down,
		Reason:    tier.ReasonThroughput,
		Rate:      41,
		At:        time.Date(2026, 3, 2, 20, 14, 4, 0, time.Local),
		Delivery:  journal.DeliveryConfirmed,
	}}

	var out bytes.Buffer
	require.NoError(t, printHistory(&out, entries, "table"))
	assert.Contains(t, out.String(), "2026-03-02 20:14:04")
	assert.Contains(t, out.String(), "medium")
	assert.Contains(t, out.String(), "41.0")

	out.Reset()
	require.NoError(t, printHistory(&out, nil, "table"))
	assert.Contains(t, out.String(), "No tier transitions recorded.")

	out.Reset()
	require.NoError(t, printHistory(&out, entries, "json"))
	assert.Contains(t, out.String(), "downgrade_medium_1")
}
