// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag runs a static dependency graph of named nodes concurrently.
//
// A graph is assembled once with a Builder and is immutable afterwards. Each
// call to Executor.Run schedules the graph against a fresh run root using an
// unmet-dependency counter per node: nodes start as soon as their last
// predecessor completes, siblings run in parallel, and every node runs at
// most once per run.
//
// Node outputs are handed to an Accumulator on the scheduler goroutine, so
// accumulators see merges strictly one at a time and in dependency order.
//
// A node that returns an error (or panics) is treated as fatal for the run.
// Nodes that want to degrade gracefully must encode failure in their output
// instead of returning it.
package dag
