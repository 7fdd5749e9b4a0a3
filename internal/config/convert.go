package config

import (
	"net/http"

	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/engine"
	"github.com/traylinx/perfgov/internal/journal"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/tier"
	"github.com/traylinx/perfgov/internal/transport"
)

// EngineConfig converts the sanitised configuration for the engine.
func (cfg *Config) EngineConfig() engine.Config {
	e := cfg.Engine
	initial, _ := tier.Parse(e.InitialTier)
	return engine.Config{
		InitialTier: initial,
		Policy: tier.Policy{
			Cooldown:     mustDuration(e.Cooldown),
			ConfirmDelay: mustDuration(e.ConfirmDelay),
			DownTrigger:  e.DownTrigger,
			DownConfirm:  e.DownConfirm,
			UpTrigger:    e.UpTrigger,
			UpConfirm:    e.UpConfirm,
		},
		Notifier: notify.Config{
			RetryDelay:     mustDuration(cfg.Notifier.RetryDelay),
			ConfirmTimeout: mustDuration(cfg.Notifier.ConfirmTimeout),
			MaxRetries:     cfg.Notifier.MaxRetries,
			SendTimeout:    mustDuration(cfg.Notifier.SendTimeout),
		},
		WindowSize:  e.WindowSize,
		NominalRate: e.NominalRate,
		AutoAdjust:  e.AutoAdjust,

		NormaliseRate: e.NormaliseRate,
	}
}

// ProbeConfig converts the capability probe parameters.
func (cfg *Config) ProbeConfig() capability.ProbeConfig {
	return capability.ProbeConfig{
		Timeout:             mustDuration(cfg.Capabilities.Timeout),
		MaxConcurrentChecks: cfg.Capabilities.MaxConcurrentChecks,
	}
}

// Environment converts the capability check inputs.
func (cfg *Config) Environment() capability.Environment {
	c := cfg.Capabilities
	return capability.Environment{
		SDKPath:             c.SDKPath,
		ModelPath:           c.ModelPath,
		StateDir:            c.StateDir,
		TransportConfigured: cfg.Transport.URL != "",
		ForceRenderV2:       c.ForceRenderV2,
		ForceRenderV1:       c.ForceRenderV1,
		Root:                c.Root,
	}
}

// TransportConfig converts the websocket client parameters.
func (cfg *Config) TransportConfig() transport.Config {
	t := cfg.Transport
	var header http.Header
	if len(t.Headers) > 0 {
		header = make(http.Header, len(t.Headers))
		for k, v := range t.Headers {
			header.Set(k, v)
		}
	}
	return transport.Config{
		URL:              t.URL,
		Header:           header,
		HandshakeTimeout: mustDuration(t.HandshakeTimeout),
		WriteTimeout:     mustDuration(t.WriteTimeout),
		PingInterval:     mustDuration(t.PingInterval),
		ReconnectDelay:   mustDuration(t.ReconnectDelay),
		QueueSize:        t.QueueSize,
	}
}

// JournalConfig converts the history store parameters.
func (cfg *Config) JournalConfig() journal.Config {
	return journal.Config{
		Driver: cfg.Journal.Driver,
		DSN:    cfg.Journal.DSN,
		Table:  cfg.Journal.Table,
	}
}
