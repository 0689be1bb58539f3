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
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvGoogleAPIKey, EnvOpenRouterAPIKey, EnvAddr, EnvLogLevel, EnvOTLPEndpoint} {
		t.Setenv(key, "")
	}
	for i := 1; i <= maxTokens; i++ {
		t.Setenv(EnvTokenPrefix+strconv.Itoa(i), "")
		t.Setenv("token"+strconv.Itoa(i), "")
	}
	old := secretsDir
	secretsDir = t.TempDir()
	t.Cleanup(func() { secretsDir = old })
	t.Chdir(t.TempDir())
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
	assert.Equal(t, 15*time.Minute, cfg.Twitter.Cooldown)
	assert.Equal(t, 10*time.Second, cfg.Fetcher.Timeout)
	assert.Zero(t, cfg.Pipeline.MaxConcurrency, "fan-out stages are unbounded by default")
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
	assert.Error(t, cfg.RequireLLMKeys())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileOverlay(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "tweetcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "0.0.0.0:9090"
llm:
  flash_model: gemini-test-flash
  requests_per_second: 0.5
fetcher:
  timeout: 3s
twitter:
  cooldown: 1m
logging:
  level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr)
	assert.Equal(t, "gemini-test-flash", cfg.LLM.FlashModel)
	assert.Equal(t, Default().LLM.ProModel, cfg.LLM.ProModel)
	assert.InDelta(t, 0.5, cfg.LLM.RequestsPerSecond, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, time.Minute, cfg.Twitter.Cooldown)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvGoogleAPIKey, "g-key")
	t.Setenv(EnvOpenRouterAPIKey, "or-key")
	t.Setenv(EnvAddr, "127.0.0.1:7000")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvOTLPEndpoint, "http://collector:4317")
	t.Setenv(EnvTokenPrefix+"01", "ignored")
	t.Setenv(EnvTokenPrefix+"1", "first")
	t.Setenv("token3", "third")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.LLM.GoogleAPIKey)
	assert.Equal(t, "or-key", cfg.LLM.OpenRouterAPIKey)
	assert.NoError(t, cfg.RequireLLMKeys())
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, []string{"first", "", "third"}, cfg.Twitter.Tokens)
}

func TestLoad_SecretsFallback(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(secretsDir, secretGoogleAPIKey), []byte("from-secret\n"), 0600))
	t.Setenv(EnvOpenRouterAPIKey, "env-wins")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-secret", cfg.LLM.GoogleAPIKey)
	assert.Equal(t, "env-wins", cfg.LLM.OpenRouterAPIKey)
}

func TestLoad_KeysInFileAreIgnored(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(DefaultFileName, []byte("llm:\n  google_api_key: leaked\n"), 0644))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.GoogleAPIKey)
}

func TestLoad_ValidationFailure(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: chatty\nfetcher:\n  max_content_chars: -1\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logging.Level")
	assert.Contains(t, err.Error(), "MaxContentChars")
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "tweetcheck.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().LLM.FlashModel, cfg.LLM.FlashModel)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \"localhost:1\"\n"), 0644))
	require.NoError(t, WriteDefault(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "localhost:1", "existing file must not be overwritten")
}
