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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph construction and execution.
var (
	// ErrNilContext is returned when a nil context is passed to Run.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilNode is recorded when AddNode receives a nil node.
	ErrNilNode = errors.New("node must not be nil")

	// ErrDuplicateNode is recorded when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrNodeNotFound indicates a dependency on a node that was never added.
	ErrNodeNotFound = errors.New("node not found")

	// ErrCycleDetected indicates the graph contains a cycle.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrNoTerminal indicates every node has a dependent, which can only
	// happen alongside a cycle.
	ErrNoTerminal = errors.New("graph has no terminal node")

	// ErrMultipleTerminals indicates more than one node has no dependents.
	ErrMultipleTerminals = errors.New("graph has more than one terminal node")

	// ErrNoProgress indicates the scheduler ran out of runnable nodes
	// before the graph completed.
	ErrNoProgress = errors.New("no runnable nodes remain but graph is incomplete")

	// ErrNodeTimeout indicates a node exceeded its timeout.
	ErrNodeTimeout = errors.New("node execution timed out")

	// ErrNodePanic indicates a node panicked during execution.
	ErrNodePanic = errors.New("node panicked")

	// ErrMergeFailed indicates the accumulator rejected a node's output.
	ErrMergeFailed = errors.New("failed to merge node output")

	// ErrInvalidInput indicates invalid arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// NodeError ties an error to the node that produced it.
type NodeError struct {
	NodeName string
	Err      error
}

// NewNodeError wraps err with the node name.
func NewNodeError(nodeName string, err error) *NodeError {
	return &NodeError{NodeName: nodeName, Err: err}
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeName, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// CycleError reports the node path that closes a cycle.
type CycleError struct {
	Path []string
}

// NewCycleError creates a CycleError for the given path.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
