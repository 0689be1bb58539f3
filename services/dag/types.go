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
	"sort"
	"sync"
	"time"
)

// RootInputKey is the inputs key under which every node receives the run root.
const RootInputKey = "root"

// Node is a unit of work in the graph.
//
// Execute receives the run root under RootInputKey plus the output of every
// declared dependency keyed by dependency name. A returned error aborts the
// whole run.
type Node interface {
	// Name returns the node's unique identifier.
	Name() string

	// Dependencies returns the names of nodes that must complete first.
	Dependencies() []string

	// Execute runs the node.
	Execute(ctx context.Context, inputs map[string]any) (any, error)

	// Timeout bounds a single execution. Zero means DefaultNodeTimeout.
	Timeout() time.Duration
}

// Accumulator receives node outputs as they complete.
//
// The executor never calls Merge concurrently for a single run. A non-nil
// error aborts the run.
type Accumulator interface {
	Merge(node string, output any) error
}

// NodeStatus is the lifecycle state of a node within one run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// Edge is a dependency: To may not start until From has completed.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DAG is a validated, immutable dependency graph. Build one with Builder.
type DAG struct {
	name       string
	nodes      map[string]Node
	edges      []Edge
	dependents map[string][]string
	order      []string
	terminal   string
}

// Name returns the graph name.
func (d *DAG) Name() string {
	return d.name
}

// GetNode returns the node registered under name.
func (d *DAG) GetNode(name string) (Node, bool) {
	n, ok := d.nodes[name]
	return n, ok
}

// NodeCount returns the number of nodes.
func (d *DAG) NodeCount() int {
	return len(d.nodes)
}

// NodeNames returns all node names in sorted order.
func (d *DAG) NodeNames() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Edges returns a copy of the graph's edges.
func (d *DAG) Edges() []Edge {
	out := make([]Edge, len(d.edges))
	copy(out, d.edges)
	return out
}

// GetDependencies returns the declared dependencies of a node.
func (d *DAG) GetDependencies(name string) []string {
	if n, ok := d.nodes[name]; ok {
		return n.Dependencies()
	}
	return nil
}

// Dependents returns the nodes that declare name as a dependency, sorted.
func (d *DAG) Dependents(name string) []string {
	return d.dependents[name]
}

// Terminal returns the single node nothing depends on.
func (d *DAG) Terminal() string {
	return d.terminal
}

// State tracks node progress for one run.
//
// Thread Safety: all methods are safe for concurrent use.
type State struct {
	SessionID    string
	StartedAt    time.Time
	NodeOutputs  map[string]any
	NodeStatuses map[string]NodeStatus
	FailedNode   string
	Error        string

	completed int
	mu        sync.RWMutex
}

// NewState creates bookkeeping for a new run.
func NewState(sessionID string) *State {
	return &State{
		SessionID:    sessionID,
		StartedAt:    time.Now(),
		NodeOutputs:  make(map[string]any),
		NodeStatuses: make(map[string]NodeStatus),
	}
}

// SetStatus records a node's status.
func (s *State) SetStatus(node string, status NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeStatuses[node] = status
}

// GetStatus returns a node's status, pending if never set.
func (s *State) GetStatus(node string) NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.NodeStatuses[node]; ok {
		return st
	}
	return NodeStatusPending
}

// SetCompleted stores a node's output and marks it completed.
func (s *State) SetCompleted(node string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeOutputs[node] = output
	if s.NodeStatuses[node] != NodeStatusCompleted {
		s.completed++
	}
	s.NodeStatuses[node] = NodeStatusCompleted
}

// GetOutput returns a completed node's output.
func (s *State) GetOutput(node string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.NodeOutputs[node]
	return out, ok
}

// SetFailed marks the run failed at node. Only the first failure is kept.
func (s *State) SetFailed(node string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NodeStatuses[node] = NodeStatusFailed
	if s.FailedNode != "" {
		return
	}
	s.FailedNode = node
	if err != nil {
		s.Error = err.Error()
	}
}

// CompletedCount returns the number of completed nodes.
func (s *State) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed
}

// CompletedNodes returns the names of completed nodes, sorted.
func (s *State) CompletedNodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name, st := range s.NodeStatuses {
		if st == NodeStatusCompleted {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsDAGComplete reports whether every node in d has completed.
func (s *State) IsDAGComplete(d *DAG) bool {
	return s.CompletedCount() == d.NodeCount()
}

// Result summarizes one run.
type Result struct {
	Success       bool                     `json:"success"`
	SessionID     string                   `json:"session_id"`
	Duration      time.Duration            `json:"duration"`
	NodesExecuted int                      `json:"nodes_executed"`
	Output        any                      `json:"output,omitempty"`
	Error         string                   `json:"error,omitempty"`
	FailedNode    string                   `json:"failed_node,omitempty"`
	NodeDurations map[string]time.Duration `json:"node_durations,omitempty"`
}
