// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads tweetcheck settings from a YAML file, environment
// variables and container secrets, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the full tweetcheck configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LLMConfig selects the models. Keys are never read from the YAML file.
type LLMConfig struct {
	GoogleAPIKey     string `yaml:"-"`
	OpenRouterAPIKey string `yaml:"-"`

	GeminiBaseURL     string        `yaml:"gemini_base_url" validate:"omitempty,url"`
	FlashModel        string        `yaml:"flash_model" validate:"required"`
	ProModel          string        `yaml:"pro_model" validate:"required"`
	OpenRouterBaseURL string        `yaml:"openrouter_base_url" validate:"omitempty,url"`
	AccountModel      string        `yaml:"account_model" validate:"required"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`

	// RequestsPerSecond limits calls per client. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

type FetcherConfig struct {
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
	UserAgent       string        `yaml:"user_agent"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"gt=0"`
	MaxContentChars int           `yaml:"max_content_chars" validate:"gt=0"`
}

// TwitterConfig configures tweet lookup. Bearer tokens come from the
// environment only.
type TwitterConfig struct {
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	Tokens    []string      `yaml:"-"`
	Cooldown  time.Duration `yaml:"cooldown" validate:"gt=0"`
	StorePath string        `yaml:"store_path"`
}

type PipelineConfig struct {
	// MaxConcurrency bounds each fan-out stage. Zero, the default, launches
	// every link at once; model throttling belongs to llm.requests_per_second.
	MaxConcurrency int  `yaml:"max_concurrency" validate:"gte=0"`
	RedactContent  bool `yaml:"redact_content"`
}

type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" validate:"required"`
	// OTLPEndpoint is a gRPC host:port. Empty writes traces to stdout when
	// StdoutTraces is set, and disables tracing otherwise.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	StdoutTraces bool   `yaml:"stdout_traces"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "localhost:8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			FlashModel:        "gemini-2.5-flash",
			ProModel:          "gemini-2.5-pro",
			AccountModel:      "x-ai/grok-4-fast",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Fetcher: FetcherConfig{
			Timeout:         10 * time.Second,
			MaxBodyBytes:    5 << 20,
			MaxContentChars: 20000,
		},
		Twitter: TwitterConfig{
			Cooldown: 15 * time.Minute,
		},
		Pipeline: PipelineConfig{
			RedactContent: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "tweetcheck",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ErrMissingKey is returned by RequireLLMKeys.
var ErrMissingKey = errors.New("api key not configured")

// RequireLLMKeys reports which model API keys are missing. Commands that run
// the pipeline call it; the rest of the configuration works without keys.
func (c *Config) RequireLLMKeys() error {
	var errs []error
	if c.LLM.GoogleAPIKey == "" {
		errs = append(errs, fmt.Errorf("%w: set %s or the %s secret", ErrMissingKey, EnvGoogleAPIKey, secretGoogleAPIKey))
	}
	if c.LLM.OpenRouterAPIKey == "" {
		errs = append(errs, fmt.Errorf("%w: set %s or the %s secret", ErrMissingKey, EnvOpenRouterAPIKey, secretOpenRouterKey))
	}
	return errors.Join(errs...)
}
