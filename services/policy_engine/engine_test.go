// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"strings"
	"testing"
)

func TestPolicyEngine(t *testing.T) {
	engine, err := NewPolicyEngine()
	if err != nil {
		t.Fatalf("Failed to initialize engine: %v", err)
	}

	tests := []struct {
		name            string
		input           string
		shouldFind      bool
		expectedClass   string
		expectedPattern string
	}{
		{
			name:       "Safe String",
			input:      "A new study shows LangGraph is 10x faster than sequential execution.",
			shouldFind: false,
		},
		{
			name:            "AWS Access Key (Secret)",
			input:           "My aws key is AKIA1234567890123456 for the prod account.",
			shouldFind:      true,
			expectedClass:   "secret",
			expectedPattern: "AWS_ACCESS_KEY_ID",
		},
		{
			name:            "Provider key (Secret)",
			input:           "leaked: sk-or-v1-abcdefghijklmnopqrstuvwxyz012345",
			shouldFind:      true,
			expectedClass:   "secret",
			expectedPattern: "OPENAI_STYLE_KEY",
		},
		{
			name:            "Email Address (PII)",
			input:           "Please contact jdoe@example.com for support.",
			shouldFind:      true,
			expectedClass:   "pii",
			expectedPattern: "EMAIL_ADDRESS",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			findings := engine.Scan(tc.input)

			if !tc.shouldFind {
				if len(findings) > 0 {
					t.Errorf("Expected 0 findings, got %d. First match: %s", len(findings), findings[0].PatternId)
				}
				if got := engine.ClassifyData([]byte(tc.input)); got != "public" {
					t.Errorf("Expected 'public' for safe string, got '%s'", got)
				}
				return
			}

			if len(findings) == 0 {
				t.Fatalf("Expected to find '%s' but got 0 findings.", tc.expectedPattern)
			}
			first := findings[0]
			if first.ClassificationName != tc.expectedClass {
				t.Errorf("Expected classification '%s', got '%s'", tc.expectedClass, first.ClassificationName)
			}
			if first.PatternId != tc.expectedPattern {
				t.Errorf("Expected pattern ID '%s', got '%s'", tc.expectedPattern, first.PatternId)
			}
			if got := engine.ClassifyData([]byte(tc.input)); got != tc.expectedClass {
				t.Errorf("ClassifyData mismatch. Expected '%s', got '%s'", tc.expectedClass, got)
			}
		})
	}
}

func TestPolicyEngine_Redact(t *testing.T) {
	engine, err := NewPolicyEngine()
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}

	in := "Write to jdoe@example.com or use key AKIA1234567890123456 today."
	out, findings := engine.Redact(in)

	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}
	want := "Write to [REDACTED:pii] or use key [REDACTED:secret] today."
	if out != want {
		t.Errorf("Redact() = %q, want %q", out, want)
	}
	if strings.Contains(out, "AKIA") {
		t.Error("secret survived redaction")
	}
}

func TestPolicyEngine_RedactNoFindings(t *testing.T) {
	engine, _ := NewPolicyEngine()
	in := "nothing sensitive"
	out, findings := engine.Redact(in)
	if out != in || findings != nil {
		t.Errorf("Redact() = %q, %v; want input unchanged", out, findings)
	}
}

func TestEngineInitializationProperties(t *testing.T) {
	engine, err := NewPolicyEngine()
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	if len(engine.Classifiers) < 2 {
		t.Fatal("Not enough classifiers loaded to test sorting.")
	}
	first := engine.Classifiers[0]
	last := engine.Classifiers[len(engine.Classifiers)-1]
	if first.Priority < last.Priority {
		t.Errorf("Classifiers are not sorted by priority! First: %d, Last: %d", first.Priority, last.Priority)
	}
	if first.Name != "secret" {
		t.Errorf("highest priority classifier = %s, want secret", first.Name)
	}
}

func TestNewPolicyEngineFromYAML_Invalid(t *testing.T) {
	bad := []byte(`classifications:
  - name: x
    priority: 1
    patterns:
      - id: BROKEN
        regex: '(['
        confidence: high
`)
	if _, err := NewPolicyEngineFromYAML(bad); err == nil {
		t.Error("expected error for invalid regex")
	}

	badConfidence := []byte(`classifications:
  - name: x
    patterns:
      - id: P
        regex: 'a'
        confidence: certain
`)
	if _, err := NewPolicyEngineFromYAML(badConfidence); err == nil {
		t.Error("expected error for invalid confidence")
	}
}

func TestPolicyEngine_Concurrency(t *testing.T) {
	engine, _ := NewPolicyEngine()
	input := "My fake key is AKIA1234567890123456"

	t.Run("ParallelScanning", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			t.Run("Worker", func(t *testing.T) {
				t.Parallel()
				if len(engine.Scan(input)) == 0 {
					t.Error("Concurrent scan failed to find secret")
				}
			})
		}
	})
}

func BenchmarkRedactArticle(b *testing.B) {
	engine, _ := NewPolicyEngine()
	input := strings.Repeat("This is a standard sentence from a news article with no secrets. ", 200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Redact(input)
	}
}
