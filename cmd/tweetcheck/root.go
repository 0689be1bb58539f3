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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tweetcheck/pkg/config"
	"github.com/AleutianAI/tweetcheck/pkg/logging"
	"github.com/AleutianAI/tweetcheck/pkg/ux"
	"github.com/AleutianAI/tweetcheck/services/factcheck"
	"github.com/AleutianAI/tweetcheck/services/fetcher"
	"github.com/AleutianAI/tweetcheck/services/llm"
	"github.com/AleutianAI/tweetcheck/services/observability"
	"github.com/AleutianAI/tweetcheck/services/policy_engine"
	"github.com/AleutianAI/tweetcheck/services/twitter"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
}

// app is the state shared by subcommands once the root pre-run has loaded
// the configuration.
type app struct {
	opts    rootOptions
	cfg     *config.Config
	logger  *logging.Logger
	metrics *observability.Metrics
	printer *ux.Printer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "tweetcheck",
		Short:         "Fact-check tweets with a parallel analysis pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.configPath, "config", "c", "", "config file (default ./"+config.DefaultFileName+" if present)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.opts.jsonOutput, "json", false, "write results as JSON")

	root.AddCommand(
		newCheckCmd(a),
		newExtractCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), ux.DetectMode(cmd.OutOrStdout(), a.opts.jsonOutput))

	// config init must work without a valid configuration.
	if cmd.Annotations["skipConfig"] == "true" {
		return nil
	}

	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return a.fail(err)
	}
	if a.opts.logLevel != "" {
		cfg.Logging.Level = a.opts.logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return a.fail(err)
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.logger.Slog())
	return nil
}

// reportedError is an error that has already been shown to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// fail prints err through the printer and returns it marked as reported.
func (a *app) fail(err error) error {
	if a.printer == nil {
		return err
	}
	if a.printer.Mode() == ux.ModeJSON {
		_ = a.printer.JSON(map[string]string{"error": err.Error()})
	} else {
		a.printer.Error(err.Error())
	}
	return reportedError{err}
}

// initTelemetry installs tracing and metrics exporters for long-running
// commands.
func (a *app) initTelemetry(ctx context.Context, metricExporter string) (func(context.Context) error, error) {
	traces := observability.ExporterNone
	switch {
	case a.cfg.Telemetry.OTLPEndpoint != "":
		traces = observability.ExporterOTLP
	case a.cfg.Telemetry.StdoutTraces:
		traces = observability.ExporterStdout
	}
	return observability.Init(ctx, observability.Config{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		TraceExporter:  traces,
		MetricExporter: metricExporter,
		OTLPEndpoint:   a.cfg.Telemetry.OTLPEndpoint,
	})
}

// =============================================================================
// Wiring
// =============================================================================

// newLLMClients builds the flash, pro and account clients, each rate
// limited and instrumented.
func (a *app) newLLMClients() (flash, pro, account llm.LLMClient, err error) {
	c := a.cfg.LLM
	if err := a.cfg.RequireLLMKeys(); err != nil {
		return nil, nil, nil, err
	}

	wrap := func(inner llm.LLMClient, model string) llm.LLMClient {
		if c.RequestsPerSecond > 0 {
			inner = llm.NewRateLimitedClient(inner, c.RequestsPerSecond, c.Burst)
		}
		return observability.InstrumentLLM(inner, model, a.metrics)
	}

	gemini := func(model string) (llm.LLMClient, error) {
		client, err := llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:  c.GoogleAPIKey,
			Model:   model,
			BaseURL: c.GeminiBaseURL,
			Timeout: c.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return wrap(client, model), nil
	}

	if flash, err = gemini(c.FlashModel); err != nil {
		return nil, nil, nil, err
	}
	if pro, err = gemini(c.ProModel); err != nil {
		return nil, nil, nil, err
	}
	router, err := llm.NewOpenRouterClient(llm.OpenRouterConfig{
		APIKey:  c.OpenRouterAPIKey,
		Model:   c.AccountModel,
		BaseURL: c.OpenRouterBaseURL,
		Timeout: c.Timeout,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return flash, pro, wrap(router, c.AccountModel), nil
}

// newPolicyEngine returns the redactor, or nil when redaction is disabled.
func (a *app) newPolicyEngine() (*policy_engine.PolicyEngine, error) {
	if !a.cfg.Pipeline.RedactContent {
		return nil, nil
	}
	return policy_engine.NewPolicyEngine()
}

// newPipeline wires the fact-check pipeline from the configuration.
func (a *app) newPipeline(engine *policy_engine.PolicyEngine) (*factcheck.Pipeline, error) {
	flash, pro, account, err := a.newLLMClients()
	if err != nil {
		return nil, err
	}

	fetchOpts := []fetcher.Option{fetcher.WithLogger(a.logger.Slog())}
	if a.metrics != nil {
		fetchOpts = append(fetchOpts, fetcher.WithObserver(a.metrics))
	}
	scraper := fetcher.New(fetcher.Config{
		Timeout:         a.cfg.Fetcher.Timeout,
		UserAgent:       a.cfg.Fetcher.UserAgent,
		MaxBodyBytes:    a.cfg.Fetcher.MaxBodyBytes,
		MaxContentChars: a.cfg.Fetcher.MaxContentChars,
	}, fetchOpts...)

	agentCfg := factcheck.AgentConfig{
		Flash:          flash,
		Pro:            pro,
		Account:        account,
		Scraper:        scraper,
		MaxConcurrency: a.cfg.Pipeline.MaxConcurrency,
		Logger:         a.logger.Slog(),
	}
	if engine != nil {
		agentCfg.Redactor = engine
	}
	agent, err := factcheck.NewAgent(agentCfg)
	if err != nil {
		return nil, err
	}

	opts := []factcheck.Option{factcheck.WithLogger(a.logger.Slog())}
	if a.metrics != nil {
		opts = append(opts, factcheck.WithRecorder(a.metrics))
	}
	return factcheck.NewPipeline(agent, opts...)
}

// newExtractor wires tweet lookup. The returned close func releases the
// cooldown store.
func (a *app) newExtractor() (*twitter.Extractor, func() error, error) {
	tc := a.cfg.Twitter
	if len(tc.Tokens) == 0 {
		return nil, nil, errors.New("no X API bearer tokens configured: set " + config.EnvTokenPrefix + "1")
	}

	var (
		store   twitter.CooldownStore
		closeFn = func() error { return nil }
	)
	if tc.StorePath != "" {
		bcfg := twitter.DefaultBadgerConfig(tc.StorePath)
		bcfg.Logger = a.logger.Slog()
		bs, err := twitter.OpenBadgerStore(bcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open cooldown store: %w", err)
		}
		store, closeFn = bs, bs.Close
	} else {
		store = twitter.NewMemoryStore()
	}

	clientOpts := []twitter.ClientOption{twitter.WithClientLogger(a.logger.Slog())}
	if tc.BaseURL != "" {
		clientOpts = append(clientOpts, twitter.WithBaseURL(tc.BaseURL))
	}
	ex := twitter.NewExtractor(
		twitter.NewClient(clientOpts...),
		twitter.NewTokenRing(tc.Tokens),
		twitter.NewCooldowns(store, tc.Cooldown),
		a.logger.Slog(),
	)
	return ex, closeFn, nil
}

// runWithSpinner runs the pipeline behind a spinner on interactive output.
func (a *app) runWithSpinner(ctx context.Context, p *factcheck.Pipeline, text, user string) *factcheck.Report {
	var report *factcheck.Report
	start := time.Now()
	_ = a.printer.WithSpinner("Fact-checking @"+user, func() error {
		report, _ = p.RunDetailed(ctx, text, user)
		return nil
	})
	a.logger.Debug("fact-check finished", slog.Duration("duration", time.Since(start)))
	return report
}

// printResult renders a report, detailed or verdict only.
func (a *app) printResult(report *factcheck.Report, detailed bool) error {
	if detailed {
		return a.printer.Report(report)
	}
	return a.printer.Verdict(report.Outcome)
}
