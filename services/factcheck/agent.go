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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/tweetcheck/services/llm"
	"github.com/AleutianAI/tweetcheck/services/policy_engine"
)

// Scraper fetches the visible text of a web page. Failures are returned as
// the content itself, never as an error.
type Scraper interface {
	Scrape(ctx context.Context, url string) string
}

// Redactor masks sensitive spans before text leaves the process.
type Redactor interface {
	Redact(text string) (string, []policy_engine.Finding)
}

// AgentConfig holds the capabilities an Agent is built from.
type AgentConfig struct {
	// Flash handles claims, summaries and verification.
	Flash llm.LLMClient
	// Pro produces the final verdict.
	Pro llm.LLMClient
	// Account analyzes the tweet author.
	Account llm.LLMClient

	Scraper Scraper

	// Redactor is optional. When set, scraped pages are redacted before
	// they are summarized.
	Redactor Redactor

	// MaxConcurrency bounds each fan-out stage. Zero means unbounded.
	MaxConcurrency int

	Logger *slog.Logger
}

// Agent performs the individual analyses. Every method converts its own
// failures into the returned value; none of them return an error.
//
// Agent is safe for concurrent use if its capabilities are.
type Agent struct {
	flash    llm.LLMClient
	pro      llm.LLMClient
	account  llm.LLMClient
	scraper  Scraper
	redactor Redactor
	limit    int
	logger   *slog.Logger

	onRedact func(source string, findings []policy_engine.Finding)
}

// NewAgent validates cfg and returns an Agent.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	var missing []string
	if cfg.Flash == nil {
		missing = append(missing, "flash")
	}
	if cfg.Pro == nil {
		missing = append(missing, "pro")
	}
	if cfg.Account == nil {
		missing = append(missing, "account")
	}
	if cfg.Scraper == nil {
		missing = append(missing, "scraper")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingCapability, strings.Join(missing, ", "))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		flash:    cfg.Flash,
		pro:      cfg.Pro,
		account:  cfg.Account,
		scraper:  cfg.Scraper,
		redactor: cfg.Redactor,
		limit:    cfg.MaxConcurrency,
		logger:   logger,
	}, nil
}

// ExtractClaims lists the claims made in tweet.
func (a *Agent) ExtractClaims(ctx context.Context, tweet string) ClaimResult {
	var parsed struct {
		Points []string `json:"points"`
	}
	if err := a.generateJSON(ctx, a.flash, "extract_claims", claimsPrompt(tweet), llm.GenerationParams{}, &parsed); err != nil {
		return ClaimResult{Error: err.Error()}
	}
	return ClaimResult{Points: nonNil(parsed.Points)}
}

// Summarize condenses scraped page content into one paragraph.
func (a *Agent) Summarize(ctx context.Context, item ScrapedContent) LinkSummary {
	content := item.Content
	if a.redactor != nil {
		var findings []policy_engine.Finding
		content, findings = a.redactor.Redact(content)
		if len(findings) > 0 {
			a.logger.Info("redacted scraped content",
				slog.String("link", item.Link),
				slog.Int("findings", len(findings)),
			)
			if a.onRedact != nil {
				a.onRedact("scraped_content", findings)
			}
		}
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := a.generateJSON(ctx, a.flash, "summarize", summaryPrompt(content), llm.GenerationParams{}, &parsed); err != nil {
		return LinkSummary{Link: item.Link, Error: err.Error()}
	}
	return LinkSummary{Link: item.Link, Summary: parsed.Summary}
}

// AnalyzeAccount returns a free-text credibility analysis of username, or
// "Error: <reason>" when the analysis could not be produced.
func (a *Agent) AnalyzeAccount(ctx context.Context, username string) string {
	params := llm.GenerationParams{
		Temperature: llm.Float32(0.5),
		MaxTokens:   llm.Int(1500),
	}
	text, err := a.account.Generate(ctx, accountPrompt(username), params)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		a.logger.Error("account analysis failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return "Error: " + err.Error()
	}
	return text
}

// Verify checks claims against a single evidence summary.
func (a *Agent) Verify(ctx context.Context, claims []string, evidence LinkSummary) VerifierResult {
	var result VerifierResult
	if err := a.generateJSON(ctx, a.flash, "verify", verifierPrompt(claims, evidence), llm.GenerationParams{}, &result); err != nil {
		return VerifierResult{Error: err.Error()}
	}
	return result
}

// Synthesize produces the final verdict. failed names the upstream analyses
// that reported an error; when it is non-empty the score is capped at
// DegradedScoreCap.
func (a *Agent) Synthesize(ctx context.Context, claims ClaimResult, verification VerifierResult, account string, failed []string) Verdict {
	var parsed struct {
		FinalVerdict string `json:"final_verdict"`
		OverallScore score  `json:"overall_score"`
		Reason       string `json:"reason"`
	}
	prompt := aggregatorPrompt(claims, verification, account, failed)
	if err := a.generateJSON(ctx, a.pro, "synthesize", prompt, llm.GenerationParams{}, &parsed); err != nil {
		return Verdict{Error: err.Error()}
	}
	if strings.TrimSpace(parsed.FinalVerdict) == "" {
		a.logger.Error("model verdict has no final_verdict")
		return Verdict{Error: "model response has no final_verdict"}
	}

	v := Verdict{
		FinalVerdict: parsed.FinalVerdict,
		OverallScore: int(parsed.OverallScore),
		Reason:       parsed.Reason,
	}
	if len(failed) > 0 {
		v.Degraded = true
		if v.OverallScore > DegradedScoreCap {
			v.OverallScore = DegradedScoreCap
		}
		v.Reason = strings.TrimSpace(v.Reason + fmt.Sprintf(" (Confidence limited: %s did not complete.)", strings.Join(failed, ", ")))
	}
	return v
}

func (a *Agent) generateJSON(ctx context.Context, client llm.LLMClient, op, prompt string, params llm.GenerationParams, v any) error {
	text, err := client.Generate(ctx, prompt, params)
	if err == nil {
		err = llm.ParseJSON(text, v)
	}
	if err != nil {
		a.logger.Error("agent call failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
