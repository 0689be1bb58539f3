// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability sets up tracing and metrics for tweetcheck.
//
// # Description
//
// Init installs the global OpenTelemetry tracer and meter providers. The dag
// executor records its node metrics through the global meter, which the
// prometheus exporter bridges into the default Prometheus registry. Metrics
// holds the application-level Prometheus series (pipeline runs, fetches,
// model calls, redactions, HTTP requests) and adapts them to the observer
// interfaces of the fetcher and factcheck packages.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability
