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

import "errors"

var (
	// ErrFieldAlreadySet is returned by State.Merge when a node writes a
	// field that another node already wrote.
	ErrFieldAlreadySet = errors.New("state field already set")

	// ErrUnexpectedOutput is returned by State.Merge for outputs that are not an Update.
	ErrUnexpectedOutput = errors.New("unexpected node output type")

	// ErrMissingRoot is returned by a node whose inputs lack the run state.
	ErrMissingRoot = errors.New("node inputs carry no pipeline state")

	// ErrFanOutPanic wraps a panic raised by one item of a fan-out stage.
	ErrFanOutPanic = errors.New("fan-out item panicked")

	// ErrMissingCapability is returned by NewAgent when a required client is nil.
	ErrMissingCapability = errors.New("agent capability not configured")
)
