package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/ingest"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// handleV1IngestMeasurement stores a pushed reading and evaluates it
// POST /api/v1/iot/measurement
func (s *Server) handleV1IngestMeasurement(c *gin.Context) {
	var raw telemetry.RawReading
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "malformed JSON body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.deps.Ingest.Ingest(ctx, raw, ingest.SourceHTTP)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":   result.Reading,
		"alerts": result.Alerts,
	})
}

// handleV1RefreshSensors drops the cached sensor configs of a node
// POST /api/v1/nodes/:id/sensors/refresh
func (s *Server) handleV1RefreshSensors(c *gin.Context) {
	nodeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid node id", "id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.deps.Ingest.RefreshSensors(ctx, nodeID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"node_id": nodeID, "refreshed": true}})
}
