// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/perfgov/internal/buildinfo"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/engine"
	"github.com/traylinx/perfgov/internal/journal"
	"github.com/traylinx/perfgov/internal/tier"
)

const maxFramesPerRequest = 10000

type tierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

type autoAdjustRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type capabilityRequest struct {
	Availability string `json:"availability" binding:"required"`
}

type framesRequest struct {
	Count int `json:"count"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

func (s *Server) healthz(c *gin.Context) {
	report := s.engine.Report()
	if !report.Running {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopped"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tier": report.Tier})
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, buildinfo.Current())
}

func (s *Server) getReport(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Report())
}

func (s *Server) putTier(c *gin.Context) {
	var req tierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier is required"})
		return
	}

	if err := s.engine.SetTier(req.Tier); err != nil {
		switch {
		case errors.Is(err, tier.ErrUnknownTier):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, engine.ErrNotRunning):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "tier": req.Tier})
}

func (s *Server) putAutoAdjust(c *gin.Context) {
	var req autoAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	s.engine.SetAutoAdjust(*req.Enabled)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "enabled": *req.Enabled})
}

func (s *Server) putCapability(c *gin.Context) {
	name := c.Param("name")

	var req capabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "availability is required"})
		return
	}
	avail, err := capability.ParseAvailability(req.Availability)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.engine.UpdateCapability(name, avail); err != nil {
		if errors.Is(err, capability.ErrUnknownCapability) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "name": name, "availability": avail})
}

func (s *Server) postConfirm(c *gin.Context) {
	id := c.Param("id")
	s.engine.Confirm(id)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "change_id": id})
}

func (s *Server) postFrames(c *gin.Context) {
	req := framesRequest{Count: 1}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	if req.Count <= 0 || req.Count > maxFramesPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and " + strconv.Itoa(maxFramesPerRequest)})
		return
	}
	s.engine.RecordFrames(req.Count)
	c.Status(http.StatusNoContent)
}

func (s *Server) putVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visible is required"})
		return
	}
	s.engine.SetVisible(*req.Visible)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "visible": *req.Visible})
}

func (s *Server) getHistory(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}

	limit := journal.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.opts.History.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) getRender(c *gin.Context) {
	if s.opts.Surface == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "render surface not attached"})
		return
	}
	c.JSON(http.StatusOK, s.opts.Surface.State())
}
