// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package factcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/tweetcheck/services/dag"
	"github.com/AleutianAI/tweetcheck/services/policy_engine"
)

// Run outcome labels passed to Recorder.
const (
	RunStatusOK       = "ok"
	RunStatusDegraded = "degraded"
	RunStatusFailed   = "failed"
)

// Messages used for Outcomes that carry no verdict.
const (
	msgNoFinalVerdict = "No final_verdict in state"
	msgGraphFailed    = "Graph execution failed: "
)

// Recorder receives pipeline measurements.
type Recorder interface {
	RecordRun(status string, duration time.Duration)
	RecordRedactions(source string, findings []policy_engine.Finding)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline and executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder attaches r to the pipeline and to its agent's redaction hook.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// Pipeline runs the fact-checking graph. The graph is built once and shared
// by every run; each run gets its own State.
type Pipeline struct {
	agent    *Agent
	graph    *dag.DAG
	executor *dag.Executor
	logger   *slog.Logger
	recorder Recorder
}

// NewPipeline builds the graph around agent.
func NewPipeline(agent *Agent, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{agent: agent, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	graph, err := NewGraph(agent)
	if err != nil {
		return nil, err
	}
	executor, err := dag.NewExecutor(graph, p.logger)
	if err != nil {
		return nil, err
	}
	p.graph = graph
	p.executor = executor
	if p.recorder != nil {
		agent.onRedact = p.recorder.RecordRedactions
	}
	return p, nil
}

// Graph returns the pipeline's graph.
func (p *Pipeline) Graph() *dag.DAG {
	return p.graph
}

// Report is the detailed result of one run.
type Report struct {
	Outcome Outcome     `json:"outcome"`
	State   Snapshot    `json:"state"`
	Run     *dag.Result `json:"run,omitempty"`
}

// Run checks one tweet and returns its verdict, or an error Outcome when the
// graph failed or produced no verdict.
func (p *Pipeline) Run(ctx context.Context, tweetText, username string) Outcome {
	report, _ := p.RunDetailed(ctx, tweetText, username)
	return report.Outcome
}

// RunDetailed is Run plus the final state and the executor's timing. The
// error is the graph failure, if any; Report is always non-nil.
func (p *Pipeline) RunDetailed(ctx context.Context, tweetText, username string) (*Report, error) {
	start := time.Now()
	state := NewState(tweetText, username)

	result, err := p.executor.Run(ctx, state, state)
	if result != nil {
		// The terminal output is already in State.
		result.Output = nil
	}

	report := &Report{State: state.Snapshot(), Run: result}
	status := RunStatusOK
	switch verdict, ok := state.FinalVerdict().Get(); {
	case err != nil:
		p.logger.Error("fact-check graph failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		report.Outcome = Outcome{Error: msgGraphFailed + err.Error()}
		status = RunStatusFailed
	case !ok:
		report.Outcome = Outcome{Error: msgNoFinalVerdict}
		status = RunStatusFailed
	case verdict.Error != "":
		report.Outcome = Outcome{Error: verdict.Error}
		status = RunStatusFailed
	default:
		report.Outcome = Outcome{Verdict: &verdict}
		if verdict.Degraded {
			status = RunStatusDegraded
		}
	}

	if p.recorder != nil {
		p.recorder.RecordRun(status, time.Since(start))
	}
	return report, err
}
