package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/alerts"
)

// handleV1ListAlerts returns active alerts, newest first
// GET /api/v1/alerts?node_id=N
func (s *Server) handleV1ListAlerts(c *gin.Context) {
	var nodeID *int64
	if nodeStr := c.Query("node_id"); nodeStr != "" {
		parsed, err := strconv.ParseInt(nodeStr, 10, 64)
		if err != nil {
			badRequest(c, "invalid node_id", "node_id")
			return
		}
		nodeID = &parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	list, err := s.deps.Alerts.ActiveAlerts(ctx, nodeID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": list,
		"meta": gin.H{
			"count": len(list),
		},
	})
}

// handleV1GetAlert returns a single alert
// GET /api/v1/alerts/:id
func (s *Server) handleV1GetAlert(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	alert, err := s.deps.Alerts.Get(ctx, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

type statusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

// handleV1UpdateAlertStatus lets an operator move an alert between statuses
// PUT /api/v1/alerts/:id/status
func (s *Server) handleV1UpdateAlertStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required", "status")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	alert, err := s.deps.Alerts.SetStatus(ctx, c.Param("id"), alerts.Status(req.Status))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}
