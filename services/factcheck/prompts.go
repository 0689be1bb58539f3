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
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	accountPostLimit  = 50
	accountTimeWindow = "6 months"
	maxPromptEvidence = 12000
	noAccountAnalysis = "(no account analysis available)"
)

func claimsPrompt(tweet string) string {
	return fmt.Sprintf(`You extract checkable content from social media posts.
List every factual claim, opinion and main point made in the tweet below.

Tweet: %q

Reply with JSON only, in this shape:
{"points": ["claim 1", "claim 2"]}`, tweet)
}

func summaryPrompt(article string) string {
	article = clip(article, maxPromptEvidence)
	return fmt.Sprintf(`Condense the following web page into a single dense paragraph of facts.
Leave out navigation text, advertising and opinion.

Page:
%q

Reply with JSON only, in this shape:
{"summary": "<paragraph>"}`, article)
}

// clip cuts s to at most limit bytes on a rune boundary.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func accountPrompt(username string) string {
	return fmt.Sprintf(`Assess the X account @%s for credibility, political or commercial bias and risk of hateful content.
Consider up to %d posts from the last %s.
Give a structured analysis followed by a credibility score.`,
		strings.TrimPrefix(username, "@"), accountPostLimit, accountTimeWindow)
}

func verifierPrompt(claims []string, evidence LinkSummary) string {
	claimsJSON, _ := json.MarshalIndent(nonNil(claims), "", "  ")
	note := ""
	if evidence.Error != "" {
		note = fmt.Sprintf("\nEvidence note: %s\n", evidence.Error)
	}
	return fmt.Sprintf(`Check each claim from a tweet against the article summary.

Claims:
%s

Article summary:
%q
%s
Reply with JSON only, in this shape:
{"overall_verdict": "<%s / %s / %s>", "results": [{"claim": "...", "status": "...", "explanation": "..."}]}`,
		claimsJSON, evidence.Summary, note,
		VerificationSupported, VerificationContradicted, VerificationNoOverlap)
}

func aggregatorPrompt(claims ClaimResult, verification VerifierResult, account string, failed []string) string {
	claimsJSON, _ := json.MarshalIndent(claims, "", "  ")
	verificationJSON, _ := json.MarshalIndent(verification, "", "  ")
	if account == "" {
		account = noAccountAnalysis
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Combine three independent analyses of a tweet into one verdict.

1. Claims found in the tweet:
%s

2. Claims checked against linked articles:
%s

3. Author account analysis:
%s

Rules:
- Pick final_verdict from: %s.
- If the claims conflict with the evidence, answer %q.
- If the tweet is opinion rather than fact, answer %q.
- If any analysis above reports an error, lower your confidence accordingly.
`, claimsJSON, verificationJSON, account,
		strings.Join([]string{VerdictVerifiedTrue, VerdictLikelyTrue, VerdictMisleading, VerdictLikelyFalse, VerdictVerifiedFalse, VerdictUnverifiable}, ", "),
		VerdictMisleading, VerdictUnverifiable)
	if len(failed) > 0 {
		fmt.Fprintf(&b, "- These analyses failed and must not be treated as evidence: %s.\n", strings.Join(failed, ", "))
	}
	b.WriteString(`
Reply with JSON only, in this shape:
{"final_verdict": "<label>", "overall_score": <integer 0-100>, "reason": "<short explanation>"}`)
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
