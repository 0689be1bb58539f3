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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Verdict labels the aggregator is asked to choose from.
const (
	VerdictVerifiedTrue  = "Verified True"
	VerdictLikelyTrue    = "Likely True"
	VerdictMisleading    = "Misleading"
	VerdictLikelyFalse   = "Likely False"
	VerdictVerifiedFalse = "Verified False"
	VerdictUnverifiable  = "Opinion/Unverifiable"
)

// Overall verifier outcomes.
const (
	VerificationSupported    = "Supported"
	VerificationContradicted = "Contradicted"
	VerificationNoOverlap    = "No Overlap"
)

// DegradedScoreCap is the highest overall_score a verdict may carry when any
// upstream analysis failed.
const DegradedScoreCap = 50

// NoEvidenceMessage is the evidence error used when the tweet had no links or
// none of them could be summarized.
const NoEvidenceMessage = "No links found or summarized."

// ClaimResult is the output of claim extraction.
type ClaimResult struct {
	Points []string `json:"points,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// ScrapedContent pairs a link with the text scraped from it. Content holds an
// "Error scraping ..." message when the fetch failed.
type ScrapedContent struct {
	Link    string `json:"link"`
	Content string `json:"content"`
}

// LinkSummary is the summary of one scraped link.
type LinkSummary struct {
	Link    string `json:"link"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// VerifierResult is the outcome of comparing claims with the evidence summary.
type VerifierResult struct {
	OverallVerdict string            `json:"overall_verdict,omitempty"`
	Results        []json.RawMessage `json:"results,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Verdict is the terminal output of a run.
type Verdict struct {
	FinalVerdict string `json:"final_verdict"`
	OverallScore int    `json:"overall_score"`
	Reason       string `json:"reason"`

	// Degraded is set when at least one upstream analysis failed and the
	// score was capped.
	Degraded bool `json:"-"`

	// Error is set when the aggregator itself could not produce a verdict.
	Error string `json:"error,omitempty"`
}

// Outcome is what a caller receives from Pipeline.Run: a Verdict, or an
// error message, never both.
type Outcome struct {
	Verdict *Verdict
	Error   string
}

// Failed reports whether the run produced no verdict.
func (o Outcome) Failed() bool {
	return o.Verdict == nil
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Verdict != nil {
		return json.Marshal(struct {
			FinalVerdict string `json:"final_verdict"`
			OverallScore int    `json:"overall_score"`
			Reason       string `json:"reason"`
		}{o.Verdict.FinalVerdict, o.Verdict.OverallScore, o.Verdict.Reason})
	}
	return json.Marshal(struct {
		Error string `json:"error"`
	}{o.Error})
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw struct {
		FinalVerdict *string `json:"final_verdict"`
		OverallScore int     `json:"overall_score"`
		Reason       string  `json:"reason"`
		Error        *string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.FinalVerdict != nil && raw.Error != nil:
		return errors.New("outcome carries both final_verdict and error")
	case raw.FinalVerdict != nil:
		*o = Outcome{Verdict: &Verdict{
			FinalVerdict: *raw.FinalVerdict,
			OverallScore: raw.OverallScore,
			Reason:       raw.Reason,
		}}
	case raw.Error != nil:
		*o = Outcome{Error: *raw.Error}
	default:
		return errors.New("outcome carries neither final_verdict nor error")
	}
	return nil
}

// score accepts an integer, a float or a numeric string. Models are not
// consistent about which one they emit.
type score int

func (s *score) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	text = strings.TrimSuffix(text, "%")
	if text == "" || text == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("overall_score %s is not a number", data)
	}
	*s = score(clampScore(int(math.Round(f))))
	return nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
