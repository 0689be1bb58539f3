// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvGoogleAPIKey     = "GOOGLE_API_KEY"
	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvTokenPrefix      = "TWEETCHECK_TOKEN_"
	EnvAddr             = "TWEETCHECK_ADDR"
	EnvLogLevel         = "TWEETCHECK_LOG_LEVEL"
	EnvOTLPEndpoint     = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

const (
	secretGoogleAPIKey  = "google_api_key"
	secretOpenRouterKey = "openrouter_api_key"

	// DefaultFileName is looked up in the working directory when no path
	// is given.
	DefaultFileName = "tweetcheck.yaml"

	maxTokens = 16
)

// secretsDir is where container secrets are mounted.
var secretsDir = "/run/secrets"

var validate = validator.New()

// Load builds the configuration.
//
// Description:
//
//	Starts from Default, overlays the YAML file at path (or DefaultFileName
//	in the working directory when path is empty and the file exists), then
//	environment variables, then secrets under /run/secrets for API keys that
//	are still unset. The result is validated.
//
// Inputs:
//
//	path - YAML file. An explicit path that does not exist is an error.
//
// Outputs:
//
//	*Config - The loaded configuration.
//	error - Read, parse or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}

	applyEnv(&cfg)
	applySecrets(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvGoogleAPIKey); v != "" {
		cfg.LLM.GoogleAPIKey = v
	}
	if v := os.Getenv(EnvOpenRouterAPIKey); v != "" {
		cfg.LLM.OpenRouterAPIKey = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		cfg.Telemetry.OTLPEndpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
	}
	if tokens := tokensFromEnv(); len(tokens) > 0 {
		cfg.Twitter.Tokens = tokens
	}
}

// tokensFromEnv reads TWEETCHECK_TOKEN_1..N, falling back to token1..N.
// Gaps are kept as empty entries so ids stay stable.
func tokensFromEnv() []string {
	tokens := make([]string, maxTokens)
	last := 0
	for i := 1; i <= maxTokens; i++ {
		v := os.Getenv(EnvTokenPrefix + strconv.Itoa(i))
		if v == "" {
			v = os.Getenv("token" + strconv.Itoa(i))
		}
		if v != "" {
			tokens[i-1] = v
			last = i
		}
	}
	return tokens[:last]
}

func applySecrets(cfg *Config) {
	if cfg.LLM.GoogleAPIKey == "" {
		cfg.LLM.GoogleAPIKey = readSecret(secretGoogleAPIKey)
	}
	if cfg.LLM.OpenRouterAPIKey == "" {
		cfg.LLM.OpenRouterAPIKey = readSecret(secretOpenRouterKey)
	}
}

func readSecret(name string) string {
	data, err := os.ReadFile(filepath.Join(secretsDir, name))
	if err != nil {
		return ""
	}
	slog.Info("read API key from secrets", "secret", name)
	return strings.TrimSpace(string(data))
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
