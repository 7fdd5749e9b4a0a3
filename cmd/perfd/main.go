// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the perfd daemon. It runs the adaptive performance engine for a local
// avatar renderer, exposes the management API and reports tier changes to a remote coordinator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/traylinx/perfgov/internal/api"
	"github.com/traylinx/perfgov/internal/buildinfo"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/config"
	"github.com/traylinx/perfgov/internal/engine"
	"github.com/traylinx/perfgov/internal/hooks"
	"github.com/traylinx/perfgov/internal/journal"
	"github.com/traylinx/perfgov/internal/logging"
	"github.com/traylinx/perfgov/internal/metrics"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/render"
	"github.com/traylinx/perfgov/internal/scheduler"
	"github.com/traylinx/perfgov/internal/transport"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	loopQueueSize   = 1024
	shutdownTimeout = 10 * time.Second
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hooks":
			handleHooksCommand(os.Args[2:])
			return
		case "history":
			handleHistoryCommand(os.Args[2:])
			return
		}
	}

	var (
		configPath  string
		openReport  bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Configure File Path")
	flag.BoolVar(&openReport, "open", false, "Open the performance report in a browser after start")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.Current())
		return
	}

	loadDotEnv()

	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logging.SetDebug(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsDir); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, openReport); err != nil {
		log.Errorf("perfd exited with error: %v", err)
		os.Exit(1)
	}
}

func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}
}

func run(ctx context.Context, cfg *config.Config, openReport bool) error {
	log.Infof("Starting %s", buildinfo.Current())

	// The loop outlives ctx so the engine teardown can still be posted to it.
	loop := scheduler.NewLoop(loopQueueSize)
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	go loop.Run(loopCtx)
	defer loop.Close()

	probe := capability.NewDefaultProbe(cfg.ProbeConfig(), cfg.Environment())
	surface := render.NewSurface()

	var (
		eng       *engine.Engine
		listeners []engine.Listener
		tp        notify.Transport
		client    *transport.Client
	)

	if cfg.Transport.URL != "" {
		client = transport.NewClient(cfg.TransportConfig(), func(changeID string) {
			if eng != nil {
				eng.Confirm(changeID)
			}
		})
		tp = client
	} else {
		log.Info("No transport configured; tier changes will not be delivered")
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
		collector.SetTier(cfg.EngineConfig().InitialTier)
		listeners = append(listeners, collector)
	}

	var (
		jrnl   *journal.Journal
		writer *journal.Writer
	)
	if cfg.Journal.Enabled {
		j, err := journal.Open(ctx, cfg.JournalConfig())
		if err != nil {
			log.Warnf("Journal disabled: %v", err)
		} else {
			jrnl = j
			writer = journal.NewWriter(j, cfg.Journal.QueueSize)
			listeners = append(listeners, writer)
		}
	}

	var (
		bus     *hooks.EventBus
		manager *hooks.HookManager
	)
	if cfg.Hooks.Enabled {
		bus = hooks.NewEventBus(cfg.Hooks.QueueSize)
		m, err := hooks.NewHookManager(cfg.Hooks.Dir, bus)
		if err != nil {
			log.Warnf("Hooks disabled: %v", err)
			bus.Shutdown()
			bus = nil
		} else {
			manager = m
			listeners = append(listeners, hooks.NewPublisher(bus))
		}
	}

	eng = engine.New(cfg.EngineConfig(), loop, probe, surface, surface, tp, listeners...)

	if manager != nil {
		hooks.RegisterBuiltInActions(manager, eng)
		if err := manager.LoadHooks(); err != nil {
			log.Warnf("Failed to load hooks: %v", err)
		}
		manager.SubscribeToAllEvents()
		if cfg.Hooks.Watch {
			if err := manager.StartWatcher(); err != nil {
				log.Warnf("Hooks watcher not started: %v", err)
			}
		}
	}

	if client != nil {
		go func() {
			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithField("component", "transport").Errorf("Transport stopped: %v", err)
			}
		}()
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	opts := api.Options{Surface: surface}
	if jrnl != nil {
		opts.History = jrnl
	}
	if collector != nil {
		opts.Metrics = collector.Handler()
	}
	server := api.NewServer(eng, opts)
	if err := server.Start(cfg.Addr()); err != nil {
		_ = eng.Stop(shutdownTimeout)
		return fmt.Errorf("failed to start management API: %w", err)
	}

	if openReport {
		url := fmt.Sprintf("http://%s:%d%s/report", displayHost(cfg.Host), cfg.Port, api.BasePath)
		if err := open.Run(url); err != nil {
			log.Warnf("Failed to open %s: %v", url, err)
		}
	}

	<-ctx.Done()
	log.Info("Shutting down perfd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warnf("Management API shutdown: %v", err)
	}
	if err := eng.Stop(shutdownTimeout); err != nil {
		log.Warnf("Engine shutdown: %v", err)
	}
	cancelLoop()

	if client != nil {
		_ = client.Close()
	}
	if manager != nil {
		manager.Close()
	}
	if bus != nil {
		bus.Shutdown()
	}
	if writer != nil {
		writer.Close()
	}
	if jrnl != nil {
		if err := jrnl.Close(); err != nil {
			log.Warnf("Journal close: %v", err)
		}
	}
	return nil
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "127.0.0.1"
	}
	return host
}
