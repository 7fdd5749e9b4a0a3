// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the perfgov daemon.
// It handles loading and parsing YAML configuration files, applies defaults for absent keys,
// and clamps invalid values so the engine always starts with a usable configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the management API binds.
	// Default is empty ("") to bind all interfaces; use "127.0.0.1" or "localhost" for local-only access.
	Host string `yaml:"host" json:"host"`

	// Port is the management API port.
	Port int `yaml:"port" json:"port"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsDir is where rotating log files are written.
	LogsDir string `yaml:"logs-dir" json:"logs-dir"`

	Engine       EngineConfig       `yaml:"engine" json:"engine"`
	Notifier     NotifierConfig     `yaml:"notifier" json:"notifier"`
	Capabilities CapabilitiesConfig `yaml:"capabilities" json:"capabilities"`
	Transport    TransportConfig    `yaml:"transport" json:"transport"`
	Journal      JournalConfig      `yaml:"journal" json:"journal"`
	Hooks        HooksConfig        `yaml:"hooks" json:"hooks"`
	Metrics      MetricsConfig      `yaml:"metrics" json:"metrics"`
}

// EngineConfig holds the tier control parameters.
type EngineConfig struct {
	// InitialTier is the tier applied before the first measurement. Default: "high".
	InitialTier string `yaml:"initial-tier" json:"initial-tier"`

	// WindowSize is the number of per-second samples averaged. Default: 60.
	WindowSize int `yaml:"window-size" json:"window-size"`

	// NominalRate is reported until the first window closes. Default: 60.
	NominalRate float64 `yaml:"nominal-rate" json:"nominal-rate"`

	// AutoAdjust enables rendering-mode recommendations to the compositor.
	AutoAdjust bool `yaml:"auto-adjust" json:"auto-adjust"`

	// NormaliseRate rescales windows longer than 1.1s to frames per second. Default: false.
	NormaliseRate bool `yaml:"normalise-rate" json:"normalise-rate"`

	// Cooldown is the minimum spacing between committed transitions. Default: "10s".
	Cooldown string `yaml:"cooldown" json:"cooldown"`

	// ConfirmDelay is how long a pending transition is observed. Default: "3s".
	ConfirmDelay string `yaml:"confirm-delay" json:"confirm-delay"`

	DownTrigger float64 `yaml:"down-trigger" json:"down-trigger"`
	DownConfirm float64 `yaml:"down-confirm" json:"down-confirm"`
	UpTrigger   float64 `yaml:"up-trigger" json:"up-trigger"`
	UpConfirm   float64 `yaml:"up-confirm" json:"up-confirm"`
}

// NotifierConfig holds the change delivery parameters.
type NotifierConfig struct {
	RetryDelay     string `yaml:"retry-delay" json:"retry-delay"`
	ConfirmTimeout string `yaml:"confirm-timeout" json:"confirm-timeout"`
	MaxRetries     int    `yaml:"max-retries" json:"max-retries"`
	SendTimeout    string `yaml:"send-timeout" json:"send-timeout"`
}

// CapabilitiesConfig points the capability checks at host resources.
type CapabilitiesConfig struct {
	Timeout             string `yaml:"timeout" json:"timeout"`
	MaxConcurrentChecks int    `yaml:"max-concurrent-checks" json:"max-concurrent-checks"`
	SDKPath             string `yaml:"sdk-path" json:"sdk-path"`
	ModelPath           string `yaml:"model-path" json:"model-path"`
	StateDir            string `yaml:"state-dir" json:"state-dir"`
	ForceRenderV2       bool   `yaml:"force-render-v2" json:"force-render-v2"`
	ForceRenderV1       bool   `yaml:"force-render-v1" json:"force-render-v1"`

	// Root prefixes device paths, for running against a fixture tree.
	Root string `yaml:"root,omitempty" json:"root,omitempty"`
}

// TransportConfig configures the websocket link to the remote coordinator.
// An empty URL runs the engine without a transport.
type TransportConfig struct {
	URL              string            `yaml:"url" json:"url"`
	Headers          map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	HandshakeTimeout string            `yaml:"handshake-timeout" json:"handshake-timeout"`
	WriteTimeout     string            `yaml:"write-timeout" json:"write-timeout"`
	PingInterval     string            `yaml:"ping-interval" json:"ping-interval"`
	ReconnectDelay   string            `yaml:"reconnect-delay" json:"reconnect-delay"`
	QueueSize        int               `yaml:"queue-size" json:"queue-size"`
}

// JournalConfig configures the transition history store.
type JournalConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Driver    string `yaml:"driver" json:"driver"`
	DSN       string `yaml:"dsn" json:"dsn"`
	Table     string `yaml:"table" json:"table"`
	QueueSize int    `yaml:"queue-size" json:"queue-size"`
}

// HooksConfig configures the automation rules.
type HooksConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Dir       string `yaml:"dir" json:"dir"`
	Watch     bool   `yaml:"watch" json:"watch"`
	QueueSize int    `yaml:"queue-size" json:"queue-size"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Port:    8321,
		LogsDir: "logs",
		Engine: EngineConfig{
			InitialTier:  "high",
			WindowSize:   60,
			NominalRate:  60,
			AutoAdjust:   true,
			Cooldown:     "10s",
			ConfirmDelay: "3s",
			DownTrigger:  0.8,
			DownConfirm:  0.85,
			UpTrigger:    1.2,
			UpConfirm:    1.15,
		},
		Notifier: NotifierConfig{
			RetryDelay:     "1s",
			ConfirmTimeout: "5s",
			MaxRetries:     3,
			SendTimeout:    "2s",
		},
		Capabilities: CapabilitiesConfig{
			Timeout:             "2s",
			MaxConcurrentChecks: 4,
			StateDir:            "state",
		},
		Transport: TransportConfig{
			HandshakeTimeout: "5s",
			WriteTimeout:     "2s",
			PingInterval:     "30s",
			ReconnectDelay:   "3s",
			QueueSize:        64,
		},
		Journal: JournalConfig{
			Enabled:   true,
			Driver:    "sqlite3",
			DSN:       "state/journal.db",
			Table:     "perf_transitions",
			QueueSize: 64,
		},
		Hooks: HooksConfig{
			Enabled:   true,
			Watch:     true,
			QueueSize: 1000,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
	return cfg
}

// LoadConfig reads the YAML configuration from configFile.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing or empty, it returns the defaults.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	// Set defaults before unmarshal so that absent keys keep defaults.
	cfg := Default()

	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			cfg.ApplyEnv()
			cfg.Sanitize()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.Sanitize()
	return cfg, nil
}

// ApplyEnv overrides selected keys from PERFGOV_* environment variables.
func (cfg *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("PERFGOV_TRANSPORT_URL"); ok {
		cfg.Transport.URL = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("PERFGOV_JOURNAL_DRIVER"); ok {
		cfg.Journal.Driver = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("PERFGOV_JOURNAL_DSN"); ok {
		cfg.Journal.DSN = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("PERFGOV_PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Port = port
		} else {
			log.WithField("component", "config").Warnf("Ignoring invalid PERFGOV_PORT %q", v)
		}
	}
	if v, ok := os.LookupEnv("PERFGOV_DEBUG"); ok {
		if debug, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Debug = debug
		}
	}
}

// Addr returns the management API listen address.
func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
