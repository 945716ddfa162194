package main

import (
	"callbridge/internal/httpapi"
	"callbridge/internal/mediastream"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, processor *mediastream.Processor, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider callbacks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	r.POST("/webhook", h.Webhook)
	r.GET("/signal", h.Signal)
	r.POST("/signal", h.Signal)
	r.GET("/media", mediastream.Handler(processor))

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		callsGroup := v1.Group("/calls")
		{
			callsGroup.POST("/start", h.StartCall)
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/:call_id", h.GetCall)
		}
	}
}
