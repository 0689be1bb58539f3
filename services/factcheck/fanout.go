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
	"fmt"

	"golang.org/x/sync/errgroup"
)

// gather runs fn for every item concurrently and returns the results in item
// order. Every item runs to completion; one item's outcome never cancels
// another. limit bounds concurrency when positive.
//
// fn is expected to encode its own failures in its result. A panic in fn is
// returned as ErrFanOutPanic once all items have finished.
func gather[In, Out any](ctx context.Context, limit int, items []In, fn func(context.Context, In) Out) ([]Out, error) {
	out := make([]Out, len(items))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: item %d: %v", ErrFanOutPanic, i, r)
				}
			}()
			out[i] = fn(ctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
