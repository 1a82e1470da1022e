package main

import (
	"campaign-callsync/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// protected ops API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		polling := v1.Group("/polling")
		{
			polling.GET("/status", h.GetPollingStatus)
			polling.POST("/trigger", h.TriggerPoll)
			polling.PUT("/interval", h.SetPollingInterval)
			polling.POST("/cache/clear", h.ClearProcessedCache)
		}

		reports := v1.Group("/reports")
		{
			reports.GET("/summary", h.GetSummary)
			reports.GET("/calls/export", h.ExportCalls)
		}
	}
}
