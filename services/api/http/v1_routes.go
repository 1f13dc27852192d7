package http

// registerV1Routes sets up the v1 API.
// Groups: /api/v1/iot, /api/v1/alerts, /api/v1/model, /api/v1/nodes
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware()) // Add X-API-Version: v1 header
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	// Device push ingress
	iot := v1.Group("/iot")
	{
		iot.POST("/measurement", s.handleV1IngestMeasurement)
	}

	alertsGroup := v1.Group("/alerts")
	{
		alertsGroup.GET("", s.handleV1ListAlerts)
		alertsGroup.GET("/:id", s.handleV1GetAlert)
		alertsGroup.PUT("/:id/status", s.handleV1UpdateAlertStatus)
	}

	// Anomaly model administration, forwarded to the scoring service
	model := v1.Group("/model")
	{
		model.GET("/info", s.handleV1ModelInfo)
		model.PUT("/sensitivity", s.handleV1UpdateSensitivity)
		model.POST("/train", s.handleV1TrainModel)
	}

	nodes := v1.Group("/nodes")
	{
		nodes.POST("/:id/sensors/refresh", s.handleV1RefreshSensors)
	}
}
