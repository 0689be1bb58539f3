// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy_engine screens text for credentials and personal data
// before it is forwarded to third-party language models.
package policy_engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/tweetcheck/services/policy_engine/enforcement"
	"gopkg.in/yaml.v3"
)

// PolicyEngine holds compiled classification rules. It is immutable after
// construction and safe for concurrent use.
type PolicyEngine struct {
	Classifiers []Classification
}

// NewPolicyEngine loads the rules embedded in the binary.
func NewPolicyEngine() (*PolicyEngine, error) {
	return NewPolicyEngineFromYAML(enforcement.DataClassificationPatterns)
}

// NewPolicyEngineFromYAML loads rules from a YAML document.
//
// Returns an error if the YAML is malformed or contains an invalid regex.
func NewPolicyEngineFromYAML(data []byte) (*PolicyEngine, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the policy file: %w", err)
	}
	if err := file.compile(); err != nil {
		return nil, err
	}
	return &PolicyEngine{Classifiers: file.Classifications}, nil
}

// ClassifyData returns the name of the highest-priority classification that
// matches data, or "public".
func (e *PolicyEngine) ClassifyData(data []byte) string {
	for _, classifier := range e.Classifiers {
		for _, pattern := range classifier.Patterns {
			if pattern.compiled.Match(data) {
				return classifier.Name
			}
		}
	}
	return "public"
}

// Scan returns every match in text, ordered by position. Overlapping matches
// keep the one from the higher-priority classification.
func (e *PolicyEngine) Scan(text string) []Finding {
	var findings []Finding
	for _, classifier := range e.Classifiers {
		for _, pattern := range classifier.Patterns {
			for _, loc := range pattern.compiled.FindAllStringIndex(text, -1) {
				if overlaps(findings, loc[0], loc[1]) {
					continue
				}
				findings = append(findings, Finding{
					ClassificationName: classifier.Name,
					PatternId:          pattern.Id,
					PatternDescription: pattern.Description,
					Confidence:         pattern.Confidence,
					Start:              loc[0],
					End:                loc[1],
				})
			}
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })
	return findings
}

// Redact replaces every finding in text with "[REDACTED:<classification>]".
func (e *PolicyEngine) Redact(text string) (string, []Finding) {
	findings := e.Scan(text)
	if len(findings) == 0 {
		return text, nil
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, f := range findings {
		b.WriteString(text[last:f.Start])
		b.WriteString("[REDACTED:")
		b.WriteString(f.ClassificationName)
		b.WriteString("]")
		last = f.End
	}
	b.WriteString(text[last:])
	return b.String(), findings
}

func overlaps(findings []Finding, start, end int) bool {
	for _, f := range findings {
		if start < f.End && f.Start < end {
			return true
		}
	}
	return false
}
