package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleV1ModelInfo describes the anomaly model in use
// GET /api/v1/model/info
func (s *Server) handleV1ModelInfo(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{"data": s.deps.Model.ModelInfo(ctx)})
}

type sensitivityRequest struct {
	Sensitivity *float64 `json:"sensitivity" binding:"required"`
}

// handleV1UpdateSensitivity changes the anomaly threshold
// PUT /api/v1/model/sensitivity
func (s *Server) handleV1UpdateSensitivity(c *gin.Context) {
	var req sensitivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "sensitivity is required", "sensitivity")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	update, err := s.deps.Model.SetSensitivity(ctx, *req.Sensitivity)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": update})
}

type trainRequest struct {
	DatasetPath string         `json:"dataset_path" binding:"required"`
	Parameters  map[string]any `json:"parameters"`
}

// handleV1TrainModel forwards a training request to the scoring service.
// The client enforces its own, longer, training timeout.
// POST /api/v1/model/train
func (s *Server) handleV1TrainModel(c *gin.Context) {
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "dataset_path is required", "dataset_path")
		return
	}

	result, err := s.deps.Model.Train(c.Request.Context(), req.DatasetPath, req.Parameters)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
