// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetcher

import "regexp"

var linkPattern = regexp.MustCompile(`https?://\S+`)

// FindLinks returns every http(s) URL in text, in order of appearance.
// A URL runs until the next whitespace, so trailing punctuation is kept.
// The result is nil when text contains no links.
func FindLinks(text string) []string {
	return linkPattern.FindAllString(text, -1)
}
