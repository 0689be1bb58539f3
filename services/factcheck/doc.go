// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package factcheck wires the tweet fact-checking agents into a fixed
// dependency graph and runs it on the dag executor.
//
// Three branches start together: claim extraction from the tweet text,
// credibility analysis of the author's account, and scraping of every link
// in the tweet. Scraped pages are summarized, the first summary is checked
// against the extracted claims, and a terminal aggregator combines claims,
// verification and account analysis into a single Verdict.
//
// Failures of the language model or of a fetch are recorded as data in the
// node's output and never abort the run. Only an unexpected node failure
// (a panic, a broken invariant) aborts it, and Pipeline.Run reports that as
// an error Outcome.
package factcheck
