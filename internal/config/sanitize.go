package config

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/tier"
)

// Sanitize runs every section sanitizer.
func (cfg *Config) Sanitize() {
	if cfg == nil {
		return
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = 8321
	}
	if strings.TrimSpace(cfg.LogsDir) == "" {
		cfg.LogsDir = "logs"
	}
	cfg.SanitizeEngine()
	cfg.SanitizeNotifier()
	cfg.SanitizeCapabilities()
	cfg.SanitizeTransport()
	cfg.SanitizeJournal()
	cfg.SanitizeHooks()
}

// durationOr normalises a duration string: empty, invalid or below min becomes def.
func durationOr(value, def string, min time.Duration) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < min {
		log.WithField("component", "config").Warnf("Invalid duration %q, using %s", value, def)
		return def
	}
	return value
}

// mustDuration parses a sanitised duration string.
func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// SanitizeEngine validates the tier control parameters.
// The confirm band must sit inside the trigger band so a pending transition can commit.
func (cfg *Config) SanitizeEngine() {
	e := &cfg.Engine
	def := Default().Engine

	if _, err := tier.Parse(e.InitialTier); err != nil {
		if e.InitialTier != "" {
			log.WithField("component", "config").Warnf("Unknown initial tier %q, using %s", e.InitialTier, def.InitialTier)
		}
		e.InitialTier = def.InitialTier
	}
	if e.WindowSize < 1 || e.WindowSize > 3600 {
		e.WindowSize = def.WindowSize
	}
	if e.NominalRate <= 0 {
		e.NominalRate = def.NominalRate
	}
	e.Cooldown = durationOr(e.Cooldown, def.Cooldown, 0)
	e.ConfirmDelay = durationOr(e.ConfirmDelay, def.ConfirmDelay, 0)

	if e.DownTrigger <= 0 || e.DownTrigger >= 1 {
		e.DownTrigger = def.DownTrigger
	}
	if e.DownConfirm < e.DownTrigger || e.DownConfirm >= 1 {
		e.DownConfirm = e.DownTrigger + 0.05
		if e.DownConfirm >= 1 {
			e.DownConfirm = e.DownTrigger
		}
	}
	if e.UpTrigger <= 1 {
		e.UpTrigger = def.UpTrigger
	}
	if e.UpConfirm > e.UpTrigger || e.UpConfirm <= 1 {
		e.UpConfirm = e.UpTrigger - 0.05
		if e.UpConfirm <= 1 {
			e.UpConfirm = e.UpTrigger
		}
	}
}

// SanitizeNotifier validates the delivery parameters.
func (cfg *Config) SanitizeNotifier() {
	n := &cfg.Notifier
	def := Default().Notifier

	n.RetryDelay = durationOr(n.RetryDelay, def.RetryDelay, 10*time.Millisecond)
	n.ConfirmTimeout = durationOr(n.ConfirmTimeout, def.ConfirmTimeout, 100*time.Millisecond)
	n.SendTimeout = durationOr(n.SendTimeout, def.SendTimeout, 10*time.Millisecond)
	if n.MaxRetries < 1 || n.MaxRetries > 10 {
		n.MaxRetries = def.MaxRetries
	}
}

// SanitizeCapabilities validates the probe parameters.
func (cfg *Config) SanitizeCapabilities() {
	c := &cfg.Capabilities
	def := Default().Capabilities

	c.Timeout = durationOr(c.Timeout, def.Timeout, 10*time.Millisecond)
	if c.MaxConcurrentChecks < 1 || c.MaxConcurrentChecks > 32 {
		c.MaxConcurrentChecks = def.MaxConcurrentChecks
	}
	c.SDKPath = strings.TrimSpace(c.SDKPath)
	c.ModelPath = strings.TrimSpace(c.ModelPath)
	c.StateDir = strings.TrimSpace(c.StateDir)
}

// SanitizeTransport validates the websocket parameters and normalises header names.
func (cfg *Config) SanitizeTransport() {
	t := &cfg.Transport
	def := Default().Transport

	t.URL = strings.TrimSpace(t.URL)
	if t.URL != "" && !strings.HasPrefix(t.URL, "ws://") && !strings.HasPrefix(t.URL, "wss://") {
		log.WithField("component", "config").Warnf("Transport url %q is not a websocket url, disabling transport", t.URL)
		t.URL = ""
	}
	t.HandshakeTimeout = durationOr(t.HandshakeTimeout, def.HandshakeTimeout, 100*time.Millisecond)
	t.WriteTimeout = durationOr(t.WriteTimeout, def.WriteTimeout, 10*time.Millisecond)
	t.PingInterval = durationOr(t.PingInterval, def.PingInterval, time.Second)
	t.ReconnectDelay = durationOr(t.ReconnectDelay, def.ReconnectDelay, 100*time.Millisecond)

	if len(t.Headers) > 0 {
		clean := make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			clean[key] = strings.TrimSpace(v)
		}
		t.Headers = clean
	}
}

// SanitizeJournal validates the history store parameters. A journal without a DSN is disabled.
func (cfg *Config) SanitizeJournal() {
	j := &cfg.Journal
	def := Default().Journal

	j.Driver = strings.ToLower(strings.TrimSpace(j.Driver))
	switch j.Driver {
	case "", "sqlite", "sqlite3":
		j.Driver = "sqlite3"
	case "postgres", "postgresql", "pgx":
		j.Driver = "pgx"
	default:
		log.WithField("component", "config").Warnf("Unsupported journal driver %q, using %s", j.Driver, def.Driver)
		j.Driver = def.Driver
	}
	j.DSN = strings.TrimSpace(j.DSN)
	if j.DSN == "" && j.Enabled {
		log.WithField("component", "config").Warn("Journal enabled without dsn, disabling journal")
		j.Enabled = false
	}
	if strings.TrimSpace(j.Table) == "" {
		j.Table = def.Table
	}
	if j.QueueSize < 1 {
		j.QueueSize = def.QueueSize
	}
}

// SanitizeHooks validates the automation parameters.
func (cfg *Config) SanitizeHooks() {
	h := &cfg.Hooks
	h.Dir = strings.TrimSpace(h.Dir)
	if h.QueueSize < 1 {
		h.QueueSize = Default().Hooks.QueueSize
	}
}
