// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package twitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CooldownError is returned by Extractor.Lookup while a token is resting.
type CooldownError struct {
	TokenID   string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	secs := int(e.Remaining / time.Second)
	return fmt.Sprintf("token %s is cooling down, try again in %dm %ds", e.TokenID, secs/60, secs%60)
}

// Extractor looks up tweets with a caller-selected token while honouring
// each token's cooldown.
//
// Lookups on the same token are serialized from the cooldown check to the
// cooldown mark, so a token is spent at most once per cooldown period.
type Extractor struct {
	client    *Client
	ring      *TokenRing
	cooldowns *Cooldowns
	logger    *slog.Logger

	mu     sync.Mutex
	tokens map[string]*sync.Mutex
}

func NewExtractor(client *Client, ring *TokenRing, cooldowns *Cooldowns, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:    client,
		ring:      ring,
		cooldowns: cooldowns,
		logger:    logger,
		tokens:    make(map[string]*sync.Mutex),
	}
}

// lockToken returns tokenID's mutex, locked.
func (e *Extractor) lockToken(tokenID string) *sync.Mutex {
	e.mu.Lock()
	m, ok := e.tokens[tokenID]
	if !ok {
		m = &sync.Mutex{}
		e.tokens[tokenID] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m
}

// Ring returns the token ring.
func (e *Extractor) Ring() *TokenRing { return e.ring }

// Cooldowns returns the cooldown tracker.
func (e *Extractor) Cooldowns() *Cooldowns { return e.cooldowns }

// Lookup fetches the tweet at tweetURL using token tokenID.
//
// The token's cooldown is checked first and a *CooldownError returned while
// it rests. The cooldown restarts only after the tweet was fetched
// successfully; failed lookups leave it untouched.
func (e *Extractor) Lookup(ctx context.Context, tweetURL, tokenID string) (*Tweet, error) {
	if !e.ring.Has(tokenID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, tokenID)
	}
	lock := e.lockToken(tokenID)
	defer lock.Unlock()

	remaining, err := e.cooldowns.Remaining(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		return nil, &CooldownError{TokenID: tokenID, Remaining: remaining}
	}
	bearer, err := e.ring.Bearer(tokenID)
	if err != nil {
		return nil, err
	}
	id, err := ParseTweetID(tweetURL)
	if err != nil {
		return nil, err
	}

	tweet, err := e.client.GetTweet(ctx, id, bearer)
	if err != nil {
		e.logger.Warn("tweet lookup failed",
			slog.String("tweet_id", id),
			slog.String("token", tokenID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if err := e.cooldowns.MarkUsed(ctx, tokenID); err != nil {
		return nil, err
	}
	return tweet, nil
}

// Remaining reports how long tokenID still rests.
func (e *Extractor) Remaining(ctx context.Context, tokenID string) (time.Duration, error) {
	if !e.ring.Has(tokenID) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tokenID)
	}
	return e.cooldowns.Remaining(ctx, tokenID)
}

// Touch restarts tokenID's cooldown without a lookup.
func (e *Extractor) Touch(ctx context.Context, tokenID string) error {
	if !e.ring.Has(tokenID) {
		return fmt.Errorf("%w: %q", ErrUnknownToken, tokenID)
	}
	lock := e.lockToken(tokenID)
	defer lock.Unlock()
	return e.cooldowns.MarkUsed(ctx, tokenID)
}
