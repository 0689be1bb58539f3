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
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestNode is a configurable node that records its executions.
type TestNode struct {
	BaseNode
	runs        atomic.Int32
	returnValue any
	returnError error
	delay       time.Duration
	panicValue  any
	onExecute   func(inputs map[string]any)
}

func NewTestNode(name string, deps []string) *TestNode {
	return &TestNode{
		BaseNode: BaseNode{
			NodeName:         name,
			NodeDependencies: deps,
			NodeTimeout:      5 * time.Second,
		},
		returnValue: name + "_output",
	}
}

func (n *TestNode) Execute(ctx context.Context, inputs map[string]any) (any, error) {
	n.runs.Add(1)
	if n.onExecute != nil {
		n.onExecute(inputs)
	}
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n.panicValue != nil {
		panic(n.panicValue)
	}
	if n.returnError != nil {
		return nil, n.returnError
	}
	return n.returnValue, nil
}

func (n *TestNode) Runs() int {
	return int(n.runs.Load())
}

func (n *TestNode) WithError(err error) *TestNode {
	n.returnError = err
	return n
}

func (n *TestNode) WithDelay(d time.Duration) *TestNode {
	n.delay = d
	return n
}

func (n *TestNode) WithPanic(v any) *TestNode {
	n.panicValue = v
	return n
}

// recordingAccumulator remembers merge order and flags concurrent merges.
type recordingAccumulator struct {
	mu         sync.Mutex
	order      []string
	outputs    map[string]any
	inMerge    atomic.Bool
	concurrent atomic.Bool
	failOn     string
}

func newRecordingAccumulator() *recordingAccumulator {
	return &recordingAccumulator{outputs: make(map[string]any)}
}

func (a *recordingAccumulator) Merge(node string, output any) error {
	if !a.inMerge.CompareAndSwap(false, true) {
		a.concurrent.Store(true)
	}
	defer a.inMerge.Store(false)

	if node == a.failOn {
		return fmt.Errorf("rejecting %s", node)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = append(a.order, node)
	a.outputs[node] = output
	return nil
}

func (a *recordingAccumulator) position(node string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, n := range a.order {
		if n == node {
			return i
		}
	}
	return -1
}

func mustBuild(t *testing.T, nodes ...Node) *DAG {
	t.Helper()
	b := NewBuilder("test")
	for _, n := range nodes {
		b.AddNode(n)
	}
	d, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return d
}

func mustExecutor(t *testing.T, d *DAG) *Executor {
	t.Helper()
	exec, err := NewExecutor(d, nil)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return exec
}

// --- Builder Tests ---

func TestBuilder_SingleNode(t *testing.T) {
	d := mustBuild(t, NewTestNode("A", nil))

	if d.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, want 1", d.NodeCount())
	}
	if d.Name() != "test" {
		t.Errorf("Name() = %q, want %q", d.Name(), "test")
	}
	if d.Terminal() != "A" {
		t.Errorf("Terminal() = %q, want %q", d.Terminal(), "A")
	}
}

func TestBuilder_NilNode(t *testing.T) {
	_, err := NewBuilder("test").AddNode(nil).Build()
	if !errors.Is(err, ErrNilNode) {
		t.Errorf("error = %v, want %v", err, ErrNilNode)
	}
}

func TestBuilder_DuplicateNode(t *testing.T) {
	_, err := NewBuilder("test").
		AddNode(NewTestNode("A", nil)).
		AddNode(NewTestNode("A", nil)).
		Build()

	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("error = %v, want %v", err, ErrDuplicateNode)
	}
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeName != "A" {
		t.Errorf("expected NodeError for A, got %v", err)
	}
}

func TestBuilder_EmptyGraph(t *testing.T) {
	_, err := NewBuilder("test").Build()
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestBuilder_MissingDependency(t *testing.T) {
	_, err := NewBuilder("test").
		AddNode(NewTestNode("B", []string{"A"})).
		Build()

	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrNodeNotFound)
	}
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeName != "B" {
		t.Errorf("expected NodeError for B, got %v", err)
	}
}

func TestBuilder_Cycle(t *testing.T) {
	_, err := NewBuilder("test").
		AddNode(NewTestNode("A", []string{"C"})).
		AddNode(NewTestNode("B", []string{"A"})).
		AddNode(NewTestNode("C", []string{"B"})).
		AddNode(NewTestNode("D", []string{"C"})).
		Build()

	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("error = %v, want %v", err, ErrCycleDetected)
	}
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	path := cycleErr.Path
	if len(path) != 4 || path[0] != path[len(path)-1] {
		t.Errorf("cycle path = %v, want a closed path of 3 nodes", path)
	}
}

func TestBuilder_SelfLoop(t *testing.T) {
	_, err := NewBuilder("test").
		AddNode(NewTestNode("A", []string{"A"})).
		Build()
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("error = %v, want %v", err, ErrCycleDetected)
	}
}

func TestBuilder_MultipleTerminals(t *testing.T) {
	_, err := NewBuilder("test").
		AddNode(NewTestNode("A", nil)).
		AddNode(NewTestNode("B", []string{"A"})).
		AddNode(NewTestNode("C", []string{"A"})).
		Build()
	if !errors.Is(err, ErrMultipleTerminals) {
		t.Errorf("error = %v, want %v", err, ErrMultipleTerminals)
	}
}

func TestBuilder_DependentsAndEdges(t *testing.T) {
	d := mustBuild(t,
		NewTestNode("A", nil),
		NewTestNode("C", []string{"A"}),
		NewTestNode("B", []string{"A"}),
		NewTestNode("D", []string{"B", "C"}),
	)

	deps := d.Dependents("A")
	if len(deps) != 2 || deps[0] != "B" || deps[1] != "C" {
		t.Errorf("Dependents(A) = %v, want [B C]", deps)
	}
	if len(d.Edges()) != 4 {
		t.Errorf("len(Edges()) = %d, want 4", len(d.Edges()))
	}
	if d.Terminal() != "D" {
		t.Errorf("Terminal() = %q, want D", d.Terminal())
	}
	names := d.NodeNames()
	if len(names) != 4 || names[0] != "A" || names[3] != "D" {
		t.Errorf("NodeNames() = %v, want sorted", names)
	}
}

func TestFuncNode_Execute(t *testing.T) {
	node := NewFuncNode("F", nil, func(_ context.Context, inputs map[string]any) (any, error) {
		return inputs[RootInputKey], nil
	}).WithTimeout(time.Second)

	if node.Timeout() != time.Second {
		t.Errorf("Timeout() = %v, want 1s", node.Timeout())
	}
	out, err := node.Execute(context.Background(), map[string]any{RootInputKey: 42})
	if err != nil || out != 42 {
		t.Errorf("Execute() = %v, %v; want 42, nil", out, err)
	}

	var empty FuncNode
	if _, err := empty.Execute(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil fn error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestBaseNode_Defaults(t *testing.T) {
	n := &BaseNode{NodeName: "X"}
	if n.Timeout() != DefaultNodeTimeout {
		t.Errorf("Timeout() = %v, want %v", n.Timeout(), DefaultNodeTimeout)
	}
	if n.Dependencies() == nil {
		t.Error("Dependencies() should never be nil")
	}
	if _, err := n.Execute(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Execute() error = %v, want %v", err, ErrInvalidInput)
	}
}

// --- Executor Tests ---

func TestNewExecutor_NilDAG(t *testing.T) {
	if _, err := NewExecutor(nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestExecutor_NilContext(t *testing.T) {
	exec := mustExecutor(t, mustBuild(t, NewTestNode("A", nil)))
	//nolint:staticcheck // exercising the nil guard
	if _, err := exec.Run(nil, nil, nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("error = %v, want %v", err, ErrNilContext)
	}
}

func TestExecutor_LinearChain(t *testing.T) {
	a := NewTestNode("A", nil)
	b := NewTestNode("B", []string{"A"})
	c := NewTestNode("C", []string{"B"})
	acc := newRecordingAccumulator()

	result, err := mustExecutor(t, mustBuild(t, a, b, c)).Run(context.Background(), "seed", acc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, error = %s", result.Error)
	}
	if result.Output != "C_output" {
		t.Errorf("Output = %v, want C_output", result.Output)
	}
	if result.NodesExecuted != 3 {
		t.Errorf("NodesExecuted = %d, want 3", result.NodesExecuted)
	}
	if got := fmt.Sprint(acc.order); got != "[A B C]" {
		t.Errorf("merge order = %s, want [A B C]", got)
	}
	if len(result.NodeDurations) != 3 {
		t.Errorf("len(NodeDurations) = %d, want 3", len(result.NodeDurations))
	}
}

func TestExecutor_InputsCarryRootAndDependencies(t *testing.T) {
	var seen map[string]any
	a := NewTestNode("A", nil)
	b := NewTestNode("B", []string{"A"})
	b.onExecute = func(inputs map[string]any) { seen = inputs }

	if _, err := mustExecutor(t, mustBuild(t, a, b)).Run(context.Background(), "seed", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if seen[RootInputKey] != "seed" {
		t.Errorf("inputs[root] = %v, want seed", seen[RootInputKey])
	}
	if seen["A"] != "A_output" {
		t.Errorf("inputs[A] = %v, want A_output", seen["A"])
	}
}

func TestExecutor_SiblingsRunConcurrently(t *testing.T) {
	// B and C each block until both have started. Sequential scheduling
	// would deadlock until the node timeout fires.
	var started sync.WaitGroup
	started.Add(2)
	rendezvous := func(map[string]any) {
		started.Done()
		started.Wait()
	}

	a := NewTestNode("A", nil)
	b := NewTestNode("B", []string{"A"})
	c := NewTestNode("C", []string{"A"})
	b.onExecute = rendezvous
	c.onExecute = rendezvous
	d := NewTestNode("D", []string{"B", "C"})

	exec := mustExecutor(t, mustBuild(t, a, b, c, d))
	finished := make(chan error, 1)
	go func() {
		_, err := exec.Run(context.Background(), nil, nil)
		finished <- err
	}()

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("siblings did not run concurrently")
	}
}

func TestExecutor_EachNodeRunsOnce(t *testing.T) {
	a := NewTestNode("A", nil)
	b := NewTestNode("B", []string{"A"})
	c := NewTestNode("C", []string{"A"})
	d := NewTestNode("D", []string{"A", "B", "C"})
	exec := mustExecutor(t, mustBuild(t, a, b, c, d))

	for i := 0; i < 5; i++ {
		if _, err := exec.Run(context.Background(), nil, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	for _, n := range []*TestNode{a, b, c, d} {
		if n.Runs() != 5 {
			t.Errorf("%s ran %d times over 5 runs, want 5", n.Name(), n.Runs())
		}
	}
}

func TestExecutor_DependencyOrderUnderRandomDelays(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 120; trial++ {
		var mu sync.Mutex
		finishedAt := make(map[string]time.Time)
		startedAt := make(map[string]time.Time)

		mk := func(name string, deps []string) Node {
			delay := time.Duration(rng.Intn(3000)) * time.Microsecond
			return NewFuncNode(name, deps, func(ctx context.Context, _ map[string]any) (any, error) {
				mu.Lock()
				startedAt[name] = time.Now()
				mu.Unlock()
				time.Sleep(delay)
				mu.Lock()
				finishedAt[name] = time.Now()
				mu.Unlock()
				return name, nil
			})
		}

		d := mustBuild(t,
			mk("claims", nil),
			mk("account", nil),
			mk("scrape", nil),
			mk("summarize", []string{"scrape"}),
			mk("verify", []string{"claims", "summarize"}),
			mk("aggregate", []string{"claims", "account", "verify"}),
		)
		if _, err := mustExecutor(t, d).Run(context.Background(), nil, nil); err != nil {
			t.Fatalf("trial %d: Run() error = %v", trial, err)
		}

		for _, edge := range d.Edges() {
			if startedAt[edge.To].Before(finishedAt[edge.From]) {
				t.Fatalf("trial %d: %s started before %s finished", trial, edge.To, edge.From)
			}
		}
	}
}

func TestExecutor_MergesAreSerializedAndOrdered(t *testing.T) {
	var nodes []Node
	deps := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("leaf%d", i)
		nodes = append(nodes, NewTestNode(name, nil).WithDelay(time.Millisecond))
		deps = append(deps, name)
	}
	nodes = append(nodes, NewTestNode("join", deps))
	acc := newRecordingAccumulator()

	if _, err := mustExecutor(t, mustBuild(t, nodes...)).Run(context.Background(), nil, acc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if acc.concurrent.Load() {
		t.Error("Merge was called concurrently")
	}
	if acc.position("join") != 8 {
		t.Errorf("join merged at position %d, want 8", acc.position("join"))
	}
}

func TestExecutor_NodeErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	a := NewTestNode("A", nil)
	b := NewTestNode("B", []string{"A"}).WithError(boom)
	c := NewTestNode("C", []string{"B"})

	result, err := mustExecutor(t, mustBuild(t, a, b, c)).Run(context.Background(), nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeName != "B" {
		t.Errorf("expected NodeError for B, got %v", err)
	}
	if result.Success || result.FailedNode != "B" {
		t.Errorf("result = %+v, want failure at B", result)
	}
	if c.Runs() != 0 {
		t.Error("C must not run after B failed")
	}
}

func TestExecutor_FailureDrainsInFlightSiblings(t *testing.T) {
	slow := NewTestNode("slow", nil).WithDelay(50 * time.Millisecond)
	bad := NewTestNode("bad", nil).WithError(errors.New("bad"))
	join := NewTestNode("join", []string{"slow", "bad"})

	_, err := mustExecutor(t, mustBuild(t, slow, bad, join)).Run(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if slow.Runs() != 1 {
		t.Errorf("slow ran %d times, want 1", slow.Runs())
	}
	if join.Runs() != 0 {
		t.Error("join must not run")
	}
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	a := NewTestNode("A", nil).WithPanic("kaboom")

	result, err := mustExecutor(t, mustBuild(t, a)).Run(context.Background(), nil, nil)
	if !errors.Is(err, ErrNodePanic) {
		t.Fatalf("error = %v, want %v", err, ErrNodePanic)
	}
	if result.FailedNode != "A" {
		t.Errorf("FailedNode = %q, want A", result.FailedNode)
	}
}

func TestExecutor_NodeTimeout(t *testing.T) {
	a := NewTestNode("A", nil).WithDelay(time.Second)
	a.NodeTimeout = 20 * time.Millisecond

	_, err := mustExecutor(t, mustBuild(t, a)).Run(context.Background(), nil, nil)
	if !errors.Is(err, ErrNodeTimeout) {
		t.Errorf("error = %v, want %v", err, ErrNodeTimeout)
	}
}

func TestExecutor_MergeErrorIsFatal(t *testing.T) {
	a := NewTestNode("A", nil)
	b := NewTestNode("B", []string{"A"})
	acc := newRecordingAccumulator()
	acc.failOn = "A"

	_, err := mustExecutor(t, mustBuild(t, a, b)).Run(context.Background(), nil, acc)
	if !errors.Is(err, ErrMergeFailed) {
		t.Fatalf("error = %v, want %v", err, ErrMergeFailed)
	}
	if b.Runs() != 0 {
		t.Error("B must not run after A's merge failed")
	}
}

func TestExecutor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := NewTestNode("A", nil)
	a.onExecute = func(map[string]any) { cancel() }
	b := NewTestNode("B", []string{"A"})

	_, err := mustExecutor(t, mustBuild(t, a, b)).Run(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want %v", err, context.Canceled)
	}
	if b.Runs() != 0 {
		t.Error("B must not start after cancellation")
	}
}

func TestState_Bookkeeping(t *testing.T) {
	s := NewState("sess")
	if s.GetStatus("A") != NodeStatusPending {
		t.Errorf("GetStatus(A) = %s, want pending", s.GetStatus("A"))
	}
	s.SetCompleted("A", 1)
	s.SetCompleted("A", 2)
	if s.CompletedCount() != 1 {
		t.Errorf("CompletedCount() = %d, want 1", s.CompletedCount())
	}
	s.SetFailed("B", errors.New("first"))
	s.SetFailed("C", errors.New("second"))
	if s.FailedNode != "B" || s.Error != "first" {
		t.Errorf("failure = %s/%s, want B/first", s.FailedNode, s.Error)
	}
	if got := s.CompletedNodes(); len(got) != 1 || got[0] != "A" {
		t.Errorf("CompletedNodes() = %v, want [A]", got)
	}
}
