// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the performance engine over a small HTTP management surface.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/engine"
	"github.com/traylinx/perfgov/internal/journal"
	"github.com/traylinx/perfgov/internal/logging"
	"github.com/traylinx/perfgov/internal/render"
)

// BasePath prefixes every engine route.
const BasePath = "/v0/perf"

// Engine is the part of the engine the API drives.
type Engine interface {
	Report() engine.Report
	SetTier(name string) error
	SetAutoAdjust(enabled bool)
	UpdateCapability(name string, avail capability.Availability) error
	Confirm(changeID string)
	RecordFrames(n int)
	SetVisible(visible bool)
}

// History reads recent journal entries.
type History interface {
	History(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Options carries the optional collaborators.
type Options struct {
	// History backs GET /history; nil disables the route.
	History History

	// Metrics serves GET /metrics; nil disables the route.
	Metrics http.Handler

	// Surface backs GET /render; nil disables the route.
	Surface *render.Surface
}

// Server is the management HTTP server.
type Server struct {
	engine Engine
	opts   Options
	router *gin.Engine
	srv    *http.Server
	done   chan struct{}
}

// NewServer builds the router for eng.
func NewServer(eng Engine, opts Options) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger())

	s := &Server{engine: eng, opts: opts, router: r}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/version", s.version)
	if s.opts.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}

	perf := s.router.Group(BasePath)
	perf.GET("/report", s.getReport)
	perf.PUT("/tier", s.putTier)
	perf.PUT("/auto-adjust", s.putAutoAdjust)
	perf.PUT("/capabilities/:name", s.putCapability)
	perf.POST("/confirm/:id", s.postConfirm)
	perf.POST("/frames", s.postFrames)
	perf.PUT("/visibility", s.putVisibility)
	perf.GET("/history", s.getHistory)
	perf.GET("/render", s.getRender)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if errServe := s.srv.Serve(ln); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.WithField("component", "api").WithError(errServe).Error("Management server stopped unexpectedly")
		}
	}()

	log.WithField("component", "api").Infof("Management API listening on %s", ln.Addr())
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
