/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/repo"
	"github.com/HamedShams/sprint-insights/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Service is what the handlers need from the report service.
type Service interface {
	Start(ctx context.Context, trigger string) error
	Running() bool
	GetLastRun(ctx context.Context) (*repo.Run, error)
	LatestReport(ctx context.Context) (*repo.ArchivedReport, error)
}

type Handlers struct {
	cfg config.Config
	log zerolog.Logger
	svc Service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc Service) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "running": h.svc.Running()})
}

func (h *Handlers) LastRun(c *gin.Context) {
	lr, err := h.svc.GetLastRun(c.Request.Context())
	if errors.Is(err, repo.ErrNoRun) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
	err := h.svc.Start(c.Request.Context(), "api")
	if errors.Is(err, services.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// LatestReport serves the newest archived report as text (default) or json.
func (h *Handlers) LatestReport(c *gin.Context) {
	format := c.DefaultQuery("format", "text")
	if format != "text" && format != "json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be text or json"})
		return
	}
	ar, err := h.svc.LatestReport(c.Request.Context())
	if errors.Is(err, repo.ErrNoReport) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Run-Id", ar.RunID.String())
	c.Header("X-Run-Status", string(ar.Status))
	if format == "json" {
		c.Data(http.StatusOK, "application/json; charset=utf-8", ar.JSON)
		return
	}
	c.String(http.StatusOK, ar.Text)
}
