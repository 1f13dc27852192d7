package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
)

// respondError maps service errors onto status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		fields := ve.Fields
		if fields == nil {
			fields = []string{}
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "fields": fields})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.logger.Errorw("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, message string, fields ...string) {
	if fields == nil {
		fields = []string{}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "fields": fields})
}
