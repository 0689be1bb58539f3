// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the fact-check pipeline and the tweet extraction flow
// over HTTP.
//
// # Routes
//
//	GET  /health
//	GET  /metrics
//	POST /v1/factcheck
//	POST /v1/factcheck/detailed
//	POST /v1/extract
//	GET  /v1/tokens/:id/cooldown
//	POST /v1/tokens/:id/cooldown
//
// Failed pipeline runs answer 502 with an {"error": ...} body; verdicts,
// including degraded ones, answer 200.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter builds a gin engine with tracing, request ids, request metrics
// and every route registered.
func NewRouter(deps Deps) *gin.Engine {
	deps = deps.withDefaults()
	registerValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(deps.ServiceName))
	router.Use(RequestID())
	router.Use(Observe(deps.Recorder, deps.Logger))

	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers the handlers on router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	deps = deps.withDefaults()
	h := &handler{deps: deps}

	router.GET("/health", HealthCheck)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/factcheck", h.FactCheck)
		v1.POST("/factcheck/detailed", h.FactCheckDetailed)

		if deps.Tweets != nil {
			v1.POST("/extract", h.Extract)
			tokens := v1.Group("/tokens")
			{
				tokens.GET("/:id/cooldown", h.GetCooldown)
				tokens.POST("/:id/cooldown", h.TouchCooldown)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
