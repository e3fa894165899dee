package main

import (
	"call-relay/internal/config"
	"call-relay/internal/httpapi"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
//
// callGuard protects call placement only; provider webhooks and ops endpoints
// stay public. A nil guard leaves /outbound-call open.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, callGuard gin.HandlerFunc) {
	// ops
	r.GET("/health", h.Health)
	r.GET("/debug", h.DebugReport)

	// Provider callbacks (public).
	r.POST("/outbound-call-webhook", h.OutboundCallWebhook)
	r.POST("/outbound-call-twiml", h.OutboundCallTwiML)

	// call placement
	if callGuard != nil {
		r.POST("/outbound-call", callGuard, h.OutboundCall)
	} else {
		r.POST("/outbound-call", h.OutboundCall)
	}
}

func corsMiddleware(cfg config.HTTPConfig) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id"}
	corsConfig.ExposeHeaders = []string{"X-Request-Id"}

	if len(cfg.CORSAllowOrigins) == 1 && cfg.CORSAllowOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowOrigins
	}
	return cors.New(corsConfig)
}
