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
	"fmt"
	"sort"
	"time"
)

// DefaultNodeTimeout applies to nodes that report a zero Timeout.
const DefaultNodeTimeout = 30 * time.Second

// BaseNode carries the static parts of a Node. Embed it and supply Execute.
//
// Example:
//
//	type ClaimNode struct {
//	    dag.BaseNode
//	    agent *Agent
//	}
//
//	func (n *ClaimNode) Execute(ctx context.Context, inputs map[string]any) (any, error) {
//	    // ...
//	}
type BaseNode struct {
	NodeName         string
	NodeDependencies []string
	NodeTimeout      time.Duration
}

// Name returns the node's unique identifier.
func (n *BaseNode) Name() string {
	return n.NodeName
}

// Dependencies returns the names of nodes that must complete first.
func (n *BaseNode) Dependencies() []string {
	if n.NodeDependencies == nil {
		return []string{}
	}
	return n.NodeDependencies
}

// Timeout returns the per-execution deadline.
func (n *BaseNode) Timeout() time.Duration {
	if n.NodeTimeout <= 0 {
		return DefaultNodeTimeout
	}
	return n.NodeTimeout
}

// Execute fails; embedding types must provide their own.
func (n *BaseNode) Execute(_ context.Context, _ map[string]any) (any, error) {
	return nil, fmt.Errorf("%w: %s has no Execute implementation", ErrInvalidInput, n.NodeName)
}

// Builder assembles and validates a DAG.
//
// Errors from AddNode are deferred until Build so calls can be chained.
// Builder is not safe for concurrent use.
//
// Example:
//
//	g, err := dag.NewBuilder("factcheck").
//	    AddNode(extract).
//	    AddNode(aggregate).
//	    Build()
type Builder struct {
	name   string
	nodes  map[string]Node
	edges  []Edge
	errors []error
}

// NewBuilder starts a graph with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]Node),
	}
}

// AddNode registers a node and an edge for each of its dependencies.
func (b *Builder) AddNode(node Node) *Builder {
	if node == nil {
		b.errors = append(b.errors, ErrNilNode)
		return b
	}

	name := node.Name()
	if _, exists := b.nodes[name]; exists {
		b.errors = append(b.errors, NewNodeError(name, ErrDuplicateNode))
		return b
	}
	b.nodes[name] = node

	for _, dep := range node.Dependencies() {
		b.edges = append(b.edges, Edge{From: dep, To: name})
	}
	return b
}

// Build validates the graph and freezes it.
//
// Validation fails when a node was rejected by AddNode, the graph is empty,
// a dependency is missing, a cycle exists, or the graph does not have
// exactly one terminal node.
func (b *Builder) Build() (*DAG, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("%w: graph %q has no nodes", ErrInvalidInput, b.name)
	}

	for _, edge := range b.edges {
		if _, exists := b.nodes[edge.From]; !exists {
			return nil, NewNodeError(edge.To, fmt.Errorf("%w: dependency %q", ErrNodeNotFound, edge.From))
		}
	}

	order := make([]string, 0, len(b.nodes))
	for name := range b.nodes {
		order = append(order, name)
	}
	sort.Strings(order)

	if err := b.detectCycles(order); err != nil {
		return nil, err
	}

	dependents := make(map[string][]string, len(b.nodes))
	for _, edge := range b.edges {
		dependents[edge.From] = append(dependents[edge.From], edge.To)
	}
	for name := range dependents {
		sort.Strings(dependents[name])
	}

	terminal, err := b.findTerminal(order, dependents)
	if err != nil {
		return nil, err
	}

	edges := make([]Edge, len(b.edges))
	copy(edges, b.edges)

	return &DAG{
		name:       b.name,
		nodes:      b.nodes,
		edges:      edges,
		dependents: dependents,
		order:      order,
		terminal:   terminal,
	}, nil
}

// detectCycles walks dependency edges depth-first. Iterating in sorted order
// keeps the reported cycle path stable between builds.
func (b *Builder) detectCycles(order []string) error {
	const (
		unvisited = iota
		onStack
		done
	)
	mark := make(map[string]int, len(b.nodes))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		mark[name] = onStack
		path = append(path, name)

		for _, dep := range b.nodes[name].Dependencies() {
			switch mark[dep] {
			case onStack:
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), dep)
				return NewCycleError(cycle)
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		mark[name] = done
		return nil
	}

	for _, name := range order {
		if mark[name] == unvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) findTerminal(order []string, dependents map[string][]string) (string, error) {
	var terminals []string
	for _, name := range order {
		if len(dependents[name]) == 0 {
			terminals = append(terminals, name)
		}
	}
	switch len(terminals) {
	case 0:
		return "", ErrNoTerminal
	case 1:
		return terminals[0], nil
	default:
		return "", fmt.Errorf("%w: %v", ErrMultipleTerminals, terminals)
	}
}

// NodeFunc is the signature of a FuncNode body.
type NodeFunc func(ctx context.Context, inputs map[string]any) (any, error)

// FuncNode adapts a plain function to the Node interface.
type FuncNode struct {
	BaseNode
	fn NodeFunc
}

// NewFuncNode creates a node named name that runs fn after deps complete.
func NewFuncNode(name string, deps []string, fn NodeFunc) *FuncNode {
	return &FuncNode{
		BaseNode: BaseNode{
			NodeName:         name,
			NodeDependencies: deps,
		},
		fn: fn,
	}
}

// Execute runs the wrapped function.
func (n *FuncNode) Execute(ctx context.Context, inputs map[string]any) (any, error) {
	if n.fn == nil {
		return nil, fmt.Errorf("%w: %s has a nil function", ErrInvalidInput, n.NodeName)
	}
	return n.fn(ctx, inputs)
}

// WithTimeout overrides the node's timeout.
func (n *FuncNode) WithTimeout(d time.Duration) *FuncNode {
	n.NodeTimeout = d
	return n
}
