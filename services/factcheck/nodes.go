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
	"strings"
	"time"

	"github.com/AleutianAI/tweetcheck/services/dag"
	"github.com/AleutianAI/tweetcheck/services/fetcher"
)

// Node names.
const (
	NodeTextClaim       = "text_claim"
	NodeAccountAnalysis = "account_analysis"
	NodeWebScraping     = "web_scraping"
	NodeSummarization   = "summarization"
	NodeVerifier        = "verifier_agent"
	NodeAggregator      = "aggregator"
)

// Per-node deadlines. Each covers the node's external calls, so they sit
// above the client timeouts.
const (
	claimTimeout       = 90 * time.Second
	accountTimeout     = 90 * time.Second
	scrapeTimeout      = 30 * time.Second
	summarizeTimeout   = 120 * time.Second
	verifyTimeout      = 90 * time.Second
	aggregationTimeout = 120 * time.Second
)

// NewGraph builds the fact-checking topology around a.
//
//	text_claim ─────────────┬──────────────────────────┐
//	web_scraping ─▶ summarization ─▶ verifier_agent ─▶ aggregator
//	account_analysis ──────────────────────────────────┘
//
// verifier_agent also depends on text_claim.
func NewGraph(a *Agent) (*dag.DAG, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil agent", ErrMissingCapability)
	}
	return dag.NewBuilder("factcheck").
		AddNode(dag.NewFuncNode(NodeTextClaim, nil, textClaimNode(a)).WithTimeout(claimTimeout)).
		AddNode(dag.NewFuncNode(NodeAccountAnalysis, nil, accountAnalysisNode(a)).WithTimeout(accountTimeout)).
		AddNode(dag.NewFuncNode(NodeWebScraping, nil, webScrapingNode(a)).WithTimeout(scrapeTimeout)).
		AddNode(dag.NewFuncNode(NodeSummarization, []string{NodeWebScraping}, summarizationNode(a)).WithTimeout(summarizeTimeout)).
		AddNode(dag.NewFuncNode(NodeVerifier, []string{NodeTextClaim, NodeSummarization}, verifierNode(a)).WithTimeout(verifyTimeout)).
		AddNode(dag.NewFuncNode(NodeAggregator, []string{NodeTextClaim, NodeAccountAnalysis, NodeVerifier}, aggregatorNode(a)).WithTimeout(aggregationTimeout)).
		Build()
}

func textClaimNode(a *Agent) dag.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		view, err := rootView(inputs)
		if err != nil {
			return nil, err
		}
		return Update{TextClaim: Some(a.ExtractClaims(ctx, view.TweetText()))}, nil
	}
}

func accountAnalysisNode(a *Agent) dag.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		view, err := rootView(inputs)
		if err != nil {
			return nil, err
		}
		return Update{AccountAnalysis: Some(a.AnalyzeAccount(ctx, view.Username()))}, nil
	}
}

func webScrapingNode(a *Agent) dag.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		view, err := rootView(inputs)
		if err != nil {
			return nil, err
		}
		links := fetcher.FindLinks(view.TweetText())
		if len(links) == 0 {
			a.logger.Info("no links found in tweet")
			return Update{ScrapedContent: Some([]ScrapedContent{})}, nil
		}
		scraped, err := gather(ctx, a.limit, links, func(ctx context.Context, link string) ScrapedContent {
			return ScrapedContent{Link: link, Content: a.scraper.Scrape(ctx, link)}
		})
		if err != nil {
			return nil, err
		}
		return Update{ScrapedContent: Some(scraped)}, nil
	}
}

func summarizationNode(a *Agent) dag.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		up, err := upstream(inputs, NodeWebScraping)
		if err != nil {
			return nil, err
		}
		items := up.ScrapedContent.OrZero()
		if len(items) == 0 {
			return Update{Summaries: Some([]LinkSummary{})}, nil
		}
		summaries, err := gather(ctx, a.limit, items, a.Summarize)
		if err != nil {
			return nil, err
		}
		return Update{Summaries: Some(summaries)}, nil
	}
}

// verifierNode checks the claims against the first link's summary only.
func verifierNode(a *Agent) dag.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		claimsUp, err := upstream(inputs, NodeTextClaim)
		if err != nil {
			return nil, err
		}
		summariesUp, err := upstream(inputs, NodeSummarization)
		if err != nil {
			return nil, err
		}

		claims := claimsUp.TextClaim.OrZero().Points
		evidence := LinkSummary{Error: NoEvidenceMessage}
		if summaries := summariesUp.Summaries.OrZero(); len(summaries) > 0 {
			evidence = summaries[0]
		}
		return Update{Verification: Some(a.Verify(ctx, claims, evidence))}, nil
	}
}

func aggregatorNode(a *Agent) dag.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		claimsUp, err := upstream(inputs, NodeTextClaim)
		if err != nil {
			return nil, err
		}
		accountUp, err := upstream(inputs, NodeAccountAnalysis)
		if err != nil {
			return nil, err
		}
		verifierUp, err := upstream(inputs, NodeVerifier)
		if err != nil {
			return nil, err
		}

		claims, claimsOK := claimsUp.TextClaim.Get()
		account, accountOK := accountUp.AccountAnalysis.Get()
		verification, verificationOK := verifierUp.Verification.Get()

		var failed []string
		if !claimsOK || claims.Error != "" {
			failed = append(failed, NodeTextClaim)
		}
		if !accountOK || strings.HasPrefix(account, "Error:") {
			failed = append(failed, NodeAccountAnalysis)
		}
		if !verificationOK || verification.Error != "" {
			failed = append(failed, NodeVerifier)
		}
		return Update{FinalVerdict: Some(a.Synthesize(ctx, claims, verification, account, failed))}, nil
	}
}

func rootView(inputs map[string]any) (View, error) {
	view, ok := inputs[dag.RootInputKey].(View)
	if !ok || view == nil {
		return nil, ErrMissingRoot
	}
	return view, nil
}

// upstream returns the Update produced by dependency name. A missing output
// reads as an empty Update.
func upstream(inputs map[string]any, name string) (Update, error) {
	raw, ok := inputs[name]
	if !ok || raw == nil {
		return Update{}, nil
	}
	switch u := raw.(type) {
	case Update:
		return u, nil
	case *Update:
		if u == nil {
			return Update{}, nil
		}
		return *u, nil
	default:
		return Update{}, fmt.Errorf("%w: input %s is %T", ErrUnexpectedOutput, name, raw)
	}
}
