// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"
)

var (
	tracer = otel.Tracer("tweetcheck.dag")
	meter  = otel.Meter("tweetcheck.dag")
)

// Executor schedules a DAG by unmet-dependency count.
//
// Description:
//
//	Every node starts with a counter equal to its number of dependencies.
//	Nodes at zero are launched immediately, each on its own goroutine. When
//	a node finishes, the scheduler goroutine merges its output into the run's
//	Accumulator, decrements the counter of each dependent and launches the
//	ones that reach zero. The run ends when no node is in flight.
//
// Thread Safety:
//
//	Executor holds no per-run state and may serve concurrent runs.
type Executor struct {
	dag    *DAG
	logger *slog.Logger

	metricsOnce     sync.Once
	nodeLatency     metric.Float64Histogram
	nodeSuccesses   metric.Int64Counter
	nodeFailures    metric.Int64Counter
	activeNodes     metric.Int64UpDownCounter
	pipelineLatency metric.Float64Histogram
}

// NewExecutor creates an executor for d. A nil logger falls back to slog.Default().
func NewExecutor(d *DAG, logger *slog.Logger) (*Executor, error) {
	if d == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{dag: d, logger: logger}, nil
}

// DAG returns the graph this executor runs.
func (e *Executor) DAG() *DAG {
	return e.dag
}

// initMetrics creates instruments on first use. Failures degrade to no metrics.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var failed []string
		var err error

		e.nodeLatency, err = meter.Float64Histogram("dag_node_duration_seconds",
			metric.WithDescription("Time spent executing each DAG node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "node_latency: "+err.Error())
		}
		e.nodeSuccesses, err = meter.Int64Counter("dag_node_success_total",
			metric.WithDescription("Number of successful node executions"),
		)
		if err != nil {
			failed = append(failed, "node_successes: "+err.Error())
		}
		e.nodeFailures, err = meter.Int64Counter("dag_node_failure_total",
			metric.WithDescription("Number of fatal node executions"),
		)
		if err != nil {
			failed = append(failed, "node_failures: "+err.Error())
		}
		e.activeNodes, err = meter.Int64UpDownCounter("dag_active_nodes",
			metric.WithDescription("Number of currently executing nodes"),
		)
		if err != nil {
			failed = append(failed, "active_nodes: "+err.Error())
		}
		e.pipelineLatency, err = meter.Float64Histogram("dag_pipeline_duration_seconds",
			metric.WithDescription("Total graph execution time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "pipeline_latency: "+err.Error())
		}

		if len(failed) > 0 {
			e.logger.Error("failed to initialize some DAG metrics",
				slog.Int("failed_count", len(failed)),
				slog.Any("errors", failed),
			)
		}
	})
}

// completion is what a node goroutine reports back to the scheduler.
type completion struct {
	node     string
	output   any
	err      error
	duration time.Duration
}

// Run executes the graph once.
//
// Description:
//
//	root is handed to every node under RootInputKey. acc, when non-nil,
//	receives each node's output on the scheduler goroutine before any
//	dependent is launched. The first node error, merge error or context
//	cancellation stops new launches; nodes already in flight are allowed to
//	finish so no goroutine outlives the call.
//
// Inputs:
//
//	ctx - Cancellation for the run. Must not be nil.
//	root - The run root (typically the typed pipeline state).
//	acc - Output sink. May be nil.
//
// Outputs:
//
//	*Result - Timing and terminal output. Always non-nil when ctx is non-nil.
//	error - *NodeError for node or merge failures, ctx.Err() on
//	        cancellation, ErrNoProgress if the graph stalls.
func (e *Executor) Run(ctx context.Context, root any, acc Accumulator) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	e.initMetrics()

	ctx, span := tracer.Start(ctx, "dag.Pipeline",
		trace.WithAttributes(
			attribute.String("dag.name", e.dag.Name()),
			attribute.Int("dag.node_count", e.dag.NodeCount()),
		),
	)
	defer span.End()

	start := time.Now()
	state := NewState(uuid.NewString()[:12])

	e.logger.Info("pipeline started",
		slog.String("dag", e.dag.Name()),
		slog.String("session_id", state.SessionID),
		slog.Int("nodes", e.dag.NodeCount()),
	)

	unmet := make(map[string]int, e.dag.NodeCount())
	for _, name := range e.dag.NodeNames() {
		unmet[name] = len(e.dag.GetDependencies(name))
	}

	// Buffered to the node count: a node goroutine never blocks on send,
	// even after the scheduler has stopped reading on failure.
	done := make(chan completion, e.dag.NodeCount())
	durations := make(map[string]time.Duration, e.dag.NodeCount())
	inFlight := 0

	launch := func(name string) {
		node, _ := e.dag.GetNode(name)
		inputs := e.gatherInputs(node, root, state)
		state.SetStatus(name, NodeStatusRunning)
		inFlight++
		go func() {
			nodeStart := time.Now()
			output, err := e.executeNode(ctx, node, state.SessionID, inputs)
			done <- completion{node: name, output: output, err: err, duration: time.Since(nodeStart)}
		}()
	}

	for _, name := range e.dag.NodeNames() {
		if unmet[name] == 0 {
			launch(name)
		}
	}

	var runErr error
	for inFlight > 0 {
		c := <-done
		inFlight--
		durations[c.node] = c.duration

		if runErr != nil {
			continue
		}
		if c.err != nil {
			state.SetFailed(c.node, c.err)
			runErr = NewNodeError(c.node, c.err)
			continue
		}
		if acc != nil {
			if err := acc.Merge(c.node, c.output); err != nil {
				err = fmt.Errorf("%w: %w", ErrMergeFailed, err)
				state.SetFailed(c.node, err)
				runErr = NewNodeError(c.node, err)
				e.logger.Error("merge failed",
					slog.String("node", c.node),
					slog.String("session_id", state.SessionID),
					slog.String("error", err.Error()),
				)
				continue
			}
		}
		state.SetCompleted(c.node, c.output)

		dependents := e.dag.Dependents(c.node)
		if err := ctx.Err(); err != nil && len(dependents) > 0 {
			runErr = err
			continue
		}
		for _, dependent := range dependents {
			unmet[dependent]--
			if unmet[dependent] == 0 {
				launch(dependent)
			}
		}
	}

	if runErr == nil && !state.IsDAGComplete(e.dag) {
		runErr = ErrNoProgress
	}

	duration := time.Since(start)
	if e.pipelineLatency != nil {
		e.pipelineLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("dag", e.dag.Name())),
		)
	}

	result := e.buildResult(state, start, durations, runErr)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		e.logger.Error("pipeline failed",
			slog.String("session_id", state.SessionID),
			slog.String("failed_node", result.FailedNode),
			slog.String("error", runErr.Error()),
		)
		return result, runErr
	}

	span.SetStatus(codes.Ok, "")
	e.logger.Info("pipeline completed",
		slog.String("session_id", state.SessionID),
		slog.Duration("duration", duration),
		slog.Int("nodes_executed", result.NodesExecuted),
	)
	return result, nil
}

// gatherInputs builds the inputs map for node from the run root and the
// outputs of its dependencies.
func (e *Executor) gatherInputs(node Node, root any, state *State) map[string]any {
	deps := node.Dependencies()
	inputs := make(map[string]any, len(deps)+1)
	inputs[RootInputKey] = root
	for _, dep := range deps {
		if out, ok := state.GetOutput(dep); ok {
			inputs[dep] = out
		}
	}
	return inputs
}

// executeNode runs one node under its own span and deadline. Panics are
// recovered and reported as ErrNodePanic.
func (e *Executor) executeNode(ctx context.Context, node Node, sessionID string, inputs map[string]any) (output any, err error) {
	ctx, span := tracer.Start(ctx, node.Name(),
		trace.WithAttributes(
			attribute.String("dag.node", node.Name()),
			attribute.StringSlice("dag.dependencies", node.Dependencies()),
			attribute.String("dag.session_id", sessionID),
		),
	)
	defer span.End()

	if e.activeNodes != nil {
		e.activeNodes.Add(ctx, 1)
		defer e.activeNodes.Add(ctx, -1)
	}

	e.logger.Debug("node starting",
		slog.String("node", node.Name()),
		slog.String("session_id", sessionID),
	)

	timeout := node.Timeout()
	if timeout <= 0 {
		timeout = DefaultNodeTimeout
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err = e.invoke(nodeCtx, node, inputs)
	duration := time.Since(start)

	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("node", node.Name())),
		)
	}

	if err != nil {
		if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s after %s: %w", ErrNodeTimeout, node.Name(), timeout, err)
		}
		if e.nodeFailures != nil {
			e.nodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node.Name())))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("node failed",
			slog.String("node", node.Name()),
			slog.String("session_id", sessionID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if e.nodeSuccesses != nil {
		e.nodeSuccesses.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node.Name())))
	}
	span.SetStatus(codes.Ok, "")
	e.logger.Info("node completed",
		slog.String("node", node.Name()),
		slog.String("session_id", sessionID),
		slog.Duration("duration", duration),
	)
	return output, nil
}

func (e *Executor) invoke(ctx context.Context, node Node, inputs map[string]any) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("node panicked",
				slog.String("node", node.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			output = nil
			err = fmt.Errorf("%w: %v", ErrNodePanic, r)
		}
	}()
	return node.Execute(ctx, inputs)
}

func (e *Executor) buildResult(state *State, start time.Time, durations map[string]time.Duration, err error) *Result {
	result := &Result{
		SessionID:     state.SessionID,
		Duration:      time.Since(start),
		NodesExecuted: state.CompletedCount(),
		NodeDurations: durations,
	}
	if err != nil {
		result.Error = err.Error()
		result.FailedNode = state.FailedNode
		return result
	}
	result.Success = true
	result.Output, _ = state.GetOutput(e.dag.Terminal())
	return result
}
