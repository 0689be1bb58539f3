// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode selects how results are rendered.
type Mode string

const (
	// ModeRich renders colored boxes and a score bar.
	ModeRich Mode = "rich"

	// ModePlain renders the same layout without colors or borders.
	ModePlain Mode = "plain"

	// ModeJSON writes machine-readable JSON only.
	ModeJSON Mode = "json"
)

// OutputEnv overrides mode detection when set to rich, plain or json.
const OutputEnv = "TWEETCHECK_OUTPUT"

// ParseMode converts a string to a Mode. Unknown values yield "".
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "color":
		return ModeRich
	case "plain", "text", "nocolor":
		return ModePlain
	case "json", "machine":
		return ModeJSON
	default:
		return ""
	}
}

// DetectMode picks the mode for w.
//
// forceJSON wins, then OutputEnv. Otherwise a terminal gets ModeRich (or
// ModePlain when NO_COLOR is set) and anything else gets ModeJSON.
func DetectMode(w io.Writer, forceJSON bool) Mode {
	if forceJSON {
		return ModeJSON
	}
	if m := ParseMode(os.Getenv(OutputEnv)); m != "" {
		return m
	}
	if !IsTerminal(w) {
		return ModeJSON
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return ModePlain
	}
	return ModeRich
}

// IsTerminal reports whether w is a terminal, including Cygwin/MSYS ptys.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
