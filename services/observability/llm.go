// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/tweetcheck/services/llm"
)

var tracer = otel.Tracer("tweetcheck.llm")

// InstrumentedLLM wraps a client with a span and call metrics.
type InstrumentedLLM struct {
	inner   llm.LLMClient
	model   string
	metrics *Metrics
}

// InstrumentLLM wraps inner. model labels the metrics and span; m may be nil
// to record spans only.
func InstrumentLLM(inner llm.LLMClient, model string, m *Metrics) *InstrumentedLLM {
	return &InstrumentedLLM{inner: inner, model: model, metrics: m}
}

// Generate forwards to the wrapped client.
func (c *InstrumentedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Generate",
		trace.WithAttributes(
			attribute.String("llm.model", c.model),
			attribute.Int("llm.prompt_chars", len(prompt)),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := c.inner.Generate(ctx, prompt, params)
	if c.metrics != nil {
		c.metrics.RecordLLMCall(c.model, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}
