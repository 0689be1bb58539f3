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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Field is an optional value that is either absent or present.
type Field[T any] struct {
	value   T
	present bool
}

// Some returns a present Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{value: v, present: true}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.present
}

// Present reports whether the field holds a value.
func (f Field[T]) Present() bool {
	return f.present
}

// OrZero returns the value, or the zero T when absent.
func (f Field[T]) OrZero() T {
	return f.value
}

// MarshalJSON encodes an absent field as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.present {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Field[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}

// Update is a node's output: the subset of state fields the node produced.
type Update struct {
	TextClaim       Field[ClaimResult]
	AccountAnalysis Field[string]
	ScrapedContent  Field[[]ScrapedContent]
	Summaries       Field[[]LinkSummary]
	Verification    Field[VerifierResult]
	FinalVerdict    Field[Verdict]
}

// View is the read-only part of the state every node may consult.
type View interface {
	TweetText() string
	Username() string
}

// State is the record accumulated over one run. Seeds are fixed at
// construction; every other field is written at most once, by Merge.
//
// State implements dag.Accumulator.
type State struct {
	tweetText string
	username  string

	mu              sync.RWMutex
	textClaim       Field[ClaimResult]
	accountAnalysis Field[string]
	scrapedContent  Field[[]ScrapedContent]
	summaries       Field[[]LinkSummary]
	verification    Field[VerifierResult]
	finalVerdict    Field[Verdict]
}

// NewState creates the state for one run.
func NewState(tweetText, username string) *State {
	return &State{tweetText: tweetText, username: username}
}

func (s *State) TweetText() string { return s.tweetText }
func (s *State) Username() string  { return s.username }

// Merge applies the Update produced by node. The merge is all-or-nothing:
// if any present field of the update is already set, nothing is written.
func (s *State) Merge(node string, output any) error {
	var u Update
	switch v := output.(type) {
	case Update:
		u = v
	case *Update:
		if v == nil {
			return fmt.Errorf("%w: node %s returned a nil *Update", ErrUnexpectedOutput, node)
		}
		u = *v
	default:
		return fmt.Errorf("%w: node %s returned %T", ErrUnexpectedOutput, node, output)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var taken []string
	if u.TextClaim.present && s.textClaim.present {
		taken = append(taken, "text_claim_result")
	}
	if u.AccountAnalysis.present && s.accountAnalysis.present {
		taken = append(taken, "account_analysis_result")
	}
	if u.ScrapedContent.present && s.scrapedContent.present {
		taken = append(taken, "scraped_content_list")
	}
	if u.Summaries.present && s.summaries.present {
		taken = append(taken, "summaries_list")
	}
	if u.Verification.present && s.verification.present {
		taken = append(taken, "verifier_result")
	}
	if u.FinalVerdict.present && s.finalVerdict.present {
		taken = append(taken, "final_verdict")
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: %s (written by %s)", ErrFieldAlreadySet, strings.Join(taken, ", "), node)
	}

	s.textClaim = pick(s.textClaim, u.TextClaim)
	s.accountAnalysis = pick(s.accountAnalysis, u.AccountAnalysis)
	s.scrapedContent = pick(s.scrapedContent, u.ScrapedContent)
	s.summaries = pick(s.summaries, u.Summaries)
	s.verification = pick(s.verification, u.Verification)
	s.finalVerdict = pick(s.finalVerdict, u.FinalVerdict)
	return nil
}

func pick[T any](current, incoming Field[T]) Field[T] {
	if incoming.present {
		return incoming
	}
	return current
}

// FinalVerdict returns the terminal field.
func (s *State) FinalVerdict() Field[Verdict] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalVerdict
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		TweetText:       s.tweetText,
		Username:        s.username,
		TextClaim:       s.textClaim,
		AccountAnalysis: s.accountAnalysis,
		ScrapedContent:  s.scrapedContent,
		Summaries:       s.summaries,
		Verification:    s.verification,
		FinalVerdict:    s.finalVerdict,
	}
}

// Snapshot is a point-in-time copy of a run's state. Absent fields encode
// as null.
type Snapshot struct {
	TweetText       string                  `json:"tweet_text"`
	Username        string                  `json:"username"`
	TextClaim       Field[ClaimResult]      `json:"text_claim_result"`
	AccountAnalysis Field[string]           `json:"account_analysis_result"`
	ScrapedContent  Field[[]ScrapedContent] `json:"scraped_content_list"`
	Summaries       Field[[]LinkSummary]    `json:"summaries_list"`
	Verification    Field[VerifierResult]   `json:"verifier_result"`
	FinalVerdict    Field[Verdict]          `json:"final_verdict"`
}
