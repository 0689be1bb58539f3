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
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/tweetcheck/services/dag"
	"github.com/AleutianAI/tweetcheck/services/llm"
	"github.com/AleutianAI/tweetcheck/services/policy_engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test doubles
// =============================================================================

// callKind classifies a prompt by the agent operation that built it.
func callKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "extract checkable content"):
		return "claims"
	case strings.Contains(prompt, "Condense the following web page"):
		return "summarize"
	case strings.Contains(prompt, "Assess the X account"):
		return "account"
	case strings.Contains(prompt, "Check each claim"):
		return "verify"
	case strings.Contains(prompt, "Combine three independent analyses"):
		return "aggregate"
	default:
		return "unknown"
	}
}

type call struct {
	kind   string
	prompt string
	start  time.Time
	end    time.Time
}

// fakeLLM answers by operation. Every call is recorded with its timing.
type fakeLLM struct {
	mu      sync.Mutex
	calls   []call
	respond map[string]func(prompt string) (string, error)
	delay   func(kind, prompt string) time.Duration
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{respond: map[string]func(string) (string, error){
		"claims":    fixed(`{"points": ["LangGraph is 10x faster"]}`),
		"summarize": fixed("```json\n{\"summary\": \"a summary\"}\n```"),
		"account":   fixed("Account looks credible. Score: 7/10"),
		"verify":    fixed(`{"overall_verdict": "No Overlap", "results": []}`),
		"aggregate": fixed(`{"final_verdict": "Likely True", "overall_score": 80, "reason": "mock synthesis"}`),
	}}
}

func fixed(s string) func(string) (string, error) {
	return func(string) (string, error) { return s, nil }
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	kind := callKind(prompt)
	c := call{kind: kind, prompt: prompt, start: time.Now()}
	if f.delay != nil {
		select {
		case <-time.After(f.delay(kind, prompt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	respond, ok := f.respond[kind]
	if !ok {
		return "", fmt.Errorf("no response for %s", kind)
	}
	out, err := respond(prompt)
	c.end = time.Now()

	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return out, err
}

func (f *fakeLLM) callsOf(kind string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type fakeScraper struct {
	calls   atomic.Int32
	content func(url string) string
	delay   func(url string) time.Duration
	panicOn string
}

func (s *fakeScraper) Scrape(ctx context.Context, url string) string {
	s.calls.Add(1)
	if url == s.panicOn {
		panic("scraper exploded")
	}
	if s.delay != nil {
		select {
		case <-time.After(s.delay(url)):
		case <-ctx.Done():
			return "Error scraping " + url + ": " + ctx.Err().Error()
		}
	}
	if s.content != nil {
		return s.content(url)
	}
	return "page text for " + url
}

type fakeRecorder struct {
	mu         sync.Mutex
	statuses   []string
	redactions map[string]int
}

func (r *fakeRecorder) RecordRun(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *fakeRecorder) RecordRedactions(source string, findings []policy_engine.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redactions == nil {
		r.redactions = map[string]int{}
	}
	r.redactions[source] += len(findings)
}

func newTestPipeline(t *testing.T, model *fakeLLM, scraper *fakeScraper, opts ...Option) *Pipeline {
	t.Helper()
	agent, err := NewAgent(AgentConfig{
		Flash:   model,
		Pro:     model,
		Account: model,
		Scraper: scraper,
	})
	require.NoError(t, err)
	p, err := NewPipeline(agent, opts...)
	require.NoError(t, err)
	return p
}

// =============================================================================
// Construction
// =============================================================================

func TestNewAgent_RequiresCapabilities(t *testing.T) {
	_, err := NewAgent(AgentConfig{Flash: newFakeLLM()})
	require.ErrorIs(t, err, ErrMissingCapability)
	assert.Contains(t, err.Error(), "pro")
	assert.Contains(t, err.Error(), "scraper")
}

func TestNewGraph_Topology(t *testing.T) {
	p := newTestPipeline(t, newFakeLLM(), &fakeScraper{})
	g := p.Graph()

	assert.Equal(t, 6, g.NodeCount())
	assert.Equal(t, NodeAggregator, g.Terminal())
	assert.ElementsMatch(t, []string{NodeTextClaim, NodeAccountAnalysis, NodeVerifier}, g.GetDependencies(NodeAggregator))
	assert.ElementsMatch(t, []string{NodeTextClaim, NodeSummarization}, g.GetDependencies(NodeVerifier))
	assert.Equal(t, []string{NodeWebScraping}, g.GetDependencies(NodeSummarization))
	for _, root := range []string{NodeTextClaim, NodeAccountAnalysis, NodeWebScraping} {
		assert.Empty(t, g.GetDependencies(root), root)
	}
}

func TestNewGraph_NilAgent(t *testing.T) {
	_, err := NewGraph(nil)
	assert.ErrorIs(t, err, ErrMissingCapability)
}

// =============================================================================
// Pipeline behaviour
// =============================================================================

func TestPipeline_NoLinks(t *testing.T) {
	model := newFakeLLM()
	scraper := &fakeScraper{}
	p := newTestPipeline(t, model, scraper)

	out := p.Run(context.Background(), "no links here", "user1")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, VerdictLikelyTrue, out.Verdict.FinalVerdict)
	assert.Equal(t, 80, out.Verdict.OverallScore)
	assert.Equal(t, "mock synthesis", out.Verdict.Reason)
	assert.False(t, out.Verdict.Degraded)

	report, err := p.RunDetailed(context.Background(), "no links here", "user1")
	require.NoError(t, err)

	scraped, ok := report.State.ScrapedContent.Get()
	require.True(t, ok)
	assert.NotNil(t, scraped)
	assert.Empty(t, scraped)

	summaries, ok := report.State.Summaries.Get()
	require.True(t, ok)
	assert.Empty(t, summaries)

	assert.Zero(t, scraper.calls.Load(), "no fetch without links")
	assert.Empty(t, model.callsOf("summarize"))

	verify := model.callsOf("verify")
	require.Len(t, verify, 2)
	assert.Contains(t, verify[0].prompt, NoEvidenceMessage)

	require.NotNil(t, report.Run)
	assert.True(t, report.Run.Success)
	assert.Equal(t, 6, report.Run.NodesExecuted)
}

func TestPipeline_LinksArePairedPositionally(t *testing.T) {
	links := []string{
		"https://a.example/1",
		"https://b.example/2",
		"https://c.example/3",
		"https://d.example/4",
	}
	model := newFakeLLM()
	model.respond["summarize"] = func(prompt string) (string, error) {
		for _, l := range links {
			if strings.Contains(prompt, "page text for "+l) {
				return fmt.Sprintf(`{"summary": "summary of %s"}`, l), nil
			}
		}
		return "", errors.New("unknown page")
	}
	// Earlier links finish last in both fan-out stages.
	reverse := func(text string) time.Duration {
		for i, l := range links {
			if strings.Contains(text, l) {
				return time.Duration(len(links)-i) * 10 * time.Millisecond
			}
		}
		return 0
	}
	model.delay = func(kind, prompt string) time.Duration {
		if kind != "summarize" {
			return 0
		}
		return reverse(prompt)
	}
	scraper := &fakeScraper{delay: reverse}
	p := newTestPipeline(t, model, scraper)

	tweet := "Sources: " + strings.Join(links, " and ")
	report, err := p.RunDetailed(context.Background(), tweet, "user1")
	require.NoError(t, err)

	assert.EqualValues(t, len(links), scraper.calls.Load())
	assert.Len(t, model.callsOf("summarize"), len(links))

	scraped := report.State.ScrapedContent.OrZero()
	summaries := report.State.Summaries.OrZero()
	require.Len(t, scraped, len(links))
	require.Len(t, summaries, len(links))
	for i, l := range links {
		assert.Equal(t, l, scraped[i].Link)
		assert.Equal(t, "page text for "+l, scraped[i].Content)
		assert.Equal(t, l, summaries[i].Link)
		assert.Equal(t, "summary of "+l, summaries[i].Summary)
		assert.Empty(t, summaries[i].Error)
	}

	verify := model.callsOf("verify")
	require.Len(t, verify, 1)
	assert.Contains(t, verify[0].prompt, "summary of "+links[0])
	assert.NotContains(t, verify[0].prompt, "summary of "+links[1])
}

func TestPipeline_ScrapeFailureIsData(t *testing.T) {
	model := newFakeLLM()
	scraper := &fakeScraper{content: func(url string) string {
		return "Error scraping " + url + ": connection refused"
	}}
	p := newTestPipeline(t, model, scraper)

	report, err := p.RunDetailed(context.Background(), "see https://down.example", "user1")
	require.NoError(t, err)
	scraped := report.State.ScrapedContent.OrZero()
	require.Len(t, scraped, 1)
	assert.True(t, strings.HasPrefix(scraped[0].Content, "Error scraping"))
	assert.False(t, report.Outcome.Failed())
}

func TestPipeline_MalformedClaimsDegradeConfidence(t *testing.T) {
	model := newFakeLLM()
	model.respond["claims"] = fixed("I think the tweet says things")
	model.respond["aggregate"] = fixed(`{"final_verdict": "Likely True", "overall_score": 90, "reason": "looks fine"}`)
	p := newTestPipeline(t, model, &fakeScraper{})

	report, err := p.RunDetailed(context.Background(), "plain tweet", "user1")
	require.NoError(t, err)

	claims := report.State.TextClaim.OrZero()
	assert.NotEmpty(t, claims.Error)
	assert.Empty(t, claims.Points)

	require.False(t, report.Outcome.Failed())
	v := report.Outcome.Verdict
	assert.True(t, v.Degraded)
	assert.Equal(t, DegradedScoreCap, v.OverallScore)
	assert.Contains(t, v.Reason, "looks fine")
	assert.Contains(t, v.Reason, NodeTextClaim)

	aggregate := model.callsOf("aggregate")
	require.Len(t, aggregate, 1)
	assert.Contains(t, aggregate[0].prompt, "These analyses failed")
}

func TestPipeline_AllJoinsErrored(t *testing.T) {
	model := newFakeLLM()
	model.respond["claims"] = fixed("not json")
	model.respond["verify"] = fixed("{broken")
	model.respond["account"] = func(string) (string, error) { return "", errors.New("rate limited") }
	model.respond["aggregate"] = fixed(`{"final_verdict": "Verified True", "overall_score": 99, "reason": "sure"}`)
	p := newTestPipeline(t, model, &fakeScraper{})

	report, err := p.RunDetailed(context.Background(), "tweet", "user1")
	require.NoError(t, err)

	assert.Equal(t, "Error: rate limited", report.State.AccountAnalysis.OrZero())
	assert.NotEmpty(t, report.State.Verification.OrZero().Error)

	v := report.Outcome.Verdict
	require.NotNil(t, v)
	assert.True(t, v.Degraded)
	assert.LessOrEqual(t, v.OverallScore, DegradedScoreCap)
	for _, node := range []string{NodeTextClaim, NodeAccountAnalysis, NodeVerifier} {
		assert.Contains(t, v.Reason, node)
	}
}

func TestPipeline_LowScoreNotRaisedWhenDegraded(t *testing.T) {
	model := newFakeLLM()
	model.respond["account"] = func(string) (string, error) { return "", errors.New("down") }
	model.respond["aggregate"] = fixed(`{"final_verdict": "Likely False", "overall_score": "20", "reason": "weak"}`)
	p := newTestPipeline(t, model, &fakeScraper{})

	out := p.Run(context.Background(), "tweet", "user1")
	require.NotNil(t, out.Verdict)
	assert.Equal(t, 20, out.Verdict.OverallScore)
	assert.True(t, out.Verdict.Degraded)
}

func TestPipeline_AggregatorFailureIsErrorOutcome(t *testing.T) {
	model := newFakeLLM()
	model.respond["aggregate"] = fixed("Sorry, I cannot help with that.")
	rec := &fakeRecorder{}
	p := newTestPipeline(t, model, &fakeScraper{}, WithRecorder(rec))

	out := p.Run(context.Background(), "tweet", "user1")
	assert.True(t, out.Failed())
	assert.Nil(t, out.Verdict)
	assert.Contains(t, out.Error, "malformed JSON")
	assert.Equal(t, []string{RunStatusFailed}, rec.statuses)
}

func TestPipeline_MissingFinalVerdictField(t *testing.T) {
	model := newFakeLLM()
	model.respond["aggregate"] = fixed(`{"overall_score": 50, "reason": "no label"}`)
	p := newTestPipeline(t, model, &fakeScraper{})

	out := p.Run(context.Background(), "tweet", "user1")
	assert.True(t, out.Failed())
	assert.Contains(t, out.Error, "final_verdict")
}

func TestPipeline_GraphFatalFailure(t *testing.T) {
	model := newFakeLLM()
	scraper := &fakeScraper{panicOn: "https://boom.example"}
	rec := &fakeRecorder{}
	p := newTestPipeline(t, model, scraper, WithRecorder(rec))

	report, err := p.RunDetailed(context.Background(), "https://boom.example is great", "user1")
	require.Error(t, err)

	var nodeErr *dag.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, NodeWebScraping, nodeErr.NodeName)
	assert.ErrorIs(t, err, ErrFanOutPanic)

	assert.True(t, report.Outcome.Failed())
	assert.True(t, strings.HasPrefix(report.Outcome.Error, "Graph execution failed: "), report.Outcome.Error)
	assert.False(t, report.State.FinalVerdict.Present())
	assert.Empty(t, model.callsOf("aggregate"))
	assert.Equal(t, []string{RunStatusFailed}, rec.statuses)
}

func TestPipeline_CancelledContext(t *testing.T) {
	model := newFakeLLM()
	model.delay = func(string, string) time.Duration { return 50 * time.Millisecond }
	p := newTestPipeline(t, model, &fakeScraper{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := p.Run(ctx, "tweet", "user1")
	assert.True(t, out.Failed())
	assert.Contains(t, out.Error, "Graph execution failed")
}

func TestPipeline_RecordsDegradedRuns(t *testing.T) {
	model := newFakeLLM()
	model.respond["claims"] = fixed("nope")
	rec := &fakeRecorder{}
	p := newTestPipeline(t, model, &fakeScraper{}, WithRecorder(rec))

	p.Run(context.Background(), "tweet", "user1")
	p.Run(context.Background(), "tweet", "user1")
	assert.Equal(t, []string{RunStatusDegraded, RunStatusDegraded}, rec.statuses)
}

func TestPipeline_RedactsScrapedContent(t *testing.T) {
	engine, err := policy_engine.NewPolicyEngine()
	require.NoError(t, err)

	model := newFakeLLM()
	scraper := &fakeScraper{content: func(string) string {
		return "Contact the author at jdoe@example.com for the dataset."
	}}
	agent, err := NewAgent(AgentConfig{
		Flash:    model,
		Pro:      model,
		Account:  model,
		Scraper:  scraper,
		Redactor: engine,
	})
	require.NoError(t, err)
	rec := &fakeRecorder{}
	p, err := NewPipeline(agent, WithRecorder(rec))
	require.NoError(t, err)

	out := p.Run(context.Background(), "read https://paper.example", "user1")
	require.False(t, out.Failed())

	summarize := model.callsOf("summarize")
	require.Len(t, summarize, 1)
	assert.NotContains(t, summarize[0].prompt, "jdoe@example.com")
	assert.Contains(t, summarize[0].prompt, "[REDACTED:pii]")
	assert.Equal(t, 1, rec.redactions["scraped_content"])
}

// TestPipeline_AggregatorWaitsForJoins checks dependency ordering under
// randomized latencies.
func TestPipeline_AggregatorWaitsForJoins(t *testing.T) {
	const trials = 120
	rng := rand.New(rand.NewSource(42))
	var rngMu sync.Mutex
	jitter := func() time.Duration {
		rngMu.Lock()
		defer rngMu.Unlock()
		return time.Duration(rng.Intn(3000)) * time.Microsecond
	}

	for trial := 0; trial < trials; trial++ {
		model := newFakeLLM()
		model.delay = func(string, string) time.Duration { return jitter() }
		scraper := &fakeScraper{delay: func(string) time.Duration { return jitter() }}
		p := newTestPipeline(t, model, scraper)

		out := p.Run(context.Background(), "two links https://x.example/a https://y.example/b", "user1")
		require.False(t, out.Failed(), "trial %d: %s", trial, out.Error)

		aggregate := model.callsOf("aggregate")
		require.Len(t, aggregate, 1, "trial %d", trial)
		start := aggregate[0].start

		for _, kind := range []string{"claims", "account", "verify", "summarize"} {
			for _, c := range model.callsOf(kind) {
				require.False(t, c.end.After(start),
					"trial %d: aggregator started before %s finished", trial, kind)
			}
		}
		verify := model.callsOf("verify")
		require.Len(t, verify, 1)
		for _, c := range model.callsOf("summarize") {
			require.False(t, c.end.After(verify[0].start),
				"trial %d: verifier started before summarization finished", trial)
		}
		for _, c := range model.callsOf("claims") {
			require.False(t, c.end.After(verify[0].start),
				"trial %d: verifier started before claim extraction finished", trial)
		}
	}
}

func TestPipeline_ConcurrentRunsShareGraph(t *testing.T) {
	model := newFakeLLM()
	p := newTestPipeline(t, model, &fakeScraper{})

	var wg sync.WaitGroup
	failures := atomic.Int32{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out := p.Run(context.Background(), fmt.Sprintf("tweet %d https://e.example/%d", i, i), "u"); out.Failed() {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failures.Load())
}
