// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tweetcheck/services/api"
	"github.com/AleutianAI/tweetcheck/services/observability"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fact-check HTTP API",
		Long: `Starts the HTTP API. Prometheus metrics are served on /metrics and
traces are exported over OTLP when OTEL_EXPORTER_OTLP_ENDPOINT is set.

The server drains in-flight requests on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			shutdownTelemetry, err := a.initTelemetry(ctx, observability.ExporterPrometheus)
			if err != nil {
				return a.fail(err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTelemetry(flushCtx); err != nil {
					a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
				}
			}()

			a.metrics = observability.NewMetrics(nil)
			engine, err := a.newPolicyEngine()
			if err != nil {
				return a.fail(err)
			}
			pipeline, err := a.newPipeline(engine)
			if err != nil {
				return a.fail(err)
			}

			deps := api.Deps{
				Checker:        pipeline,
				Recorder:       a.metrics,
				MetricsHandler: observability.MetricsHandler(nil),
				Logger:         a.logger.Slog(),
				ServiceName:    a.cfg.Telemetry.ServiceName,
			}
			if engine != nil {
				deps.Redactor = engine
			}
			if len(a.cfg.Twitter.Tokens) > 0 {
				extractor, closeStore, err := a.newExtractor()
				if err != nil {
					return a.fail(err)
				}
				defer func() { _ = closeStore() }()
				deps.Tweets = extractor
			} else {
				a.logger.Warn("no X API tokens configured, extraction routes disabled")
			}

			gin.SetMode(gin.ReleaseMode)
			router := api.NewRouter(deps)
			return api.Serve(ctx, api.ServerConfig{
				Addr:            a.cfg.Server.Addr,
				ReadTimeout:     a.cfg.Server.ReadTimeout,
				WriteTimeout:    a.cfg.Server.WriteTimeout,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
			}, router, a.logger.Slog())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
