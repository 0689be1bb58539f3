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
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultCooldown is how long a bearer token rests after a successful lookup.
const DefaultCooldown = 15 * time.Minute

var (
	// ErrUnknownToken is returned for a token id that is not in the ring.
	ErrUnknownToken = errors.New("unknown token id")

	// ErrTokenNotConfigured is returned for a known id with no bearer value.
	ErrTokenNotConfigured = errors.New("bearer token not configured")
)

// CooldownStore persists the last successful use of each token id.
type CooldownStore interface {
	// LastUsed returns the zero time for a token never used.
	LastUsed(ctx context.Context, tokenID string) (time.Time, error)
	SetLastUsed(ctx context.Context, tokenID string, at time.Time) error
}

// Cooldowns applies a fixed rest period on top of a CooldownStore.
type Cooldowns struct {
	store  CooldownStore
	period time.Duration
	now    func() time.Time
}

// NewCooldowns returns Cooldowns over store. A non-positive period means
// DefaultCooldown.
func NewCooldowns(store CooldownStore, period time.Duration) *Cooldowns {
	if period <= 0 {
		period = DefaultCooldown
	}
	return &Cooldowns{store: store, period: period, now: time.Now}
}

// Period returns the configured rest period.
func (c *Cooldowns) Period() time.Duration {
	return c.period
}

// Remaining returns how long tokenID must still rest. Zero means ready.
func (c *Cooldowns) Remaining(ctx context.Context, tokenID string) (time.Duration, error) {
	last, err := c.store.LastUsed(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("read cooldown for token %s: %w", tokenID, err)
	}
	if last.IsZero() {
		return 0, nil
	}
	remaining := c.period - c.now().Sub(last)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// MarkUsed starts the rest period for tokenID now. Call it only after the
// token served a successful lookup.
func (c *Cooldowns) MarkUsed(ctx context.Context, tokenID string) error {
	if err := c.store.SetLastUsed(ctx, tokenID, c.now()); err != nil {
		return fmt.Errorf("write cooldown for token %s: %w", tokenID, err)
	}
	return nil
}

// MemoryStore keeps cooldowns in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]time.Time)}
}

func (m *MemoryStore) LastUsed(_ context.Context, tokenID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last[tokenID], nil
}

func (m *MemoryStore) SetLastUsed(_ context.Context, tokenID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[tokenID] = at
	return nil
}

// TokenRing maps token ids "1".."N" to bearer tokens.
type TokenRing struct {
	tokens map[string]string
}

// NewTokenRing numbers bearers from 1. Empty entries keep their id but are
// reported as not configured.
func NewTokenRing(bearers []string) *TokenRing {
	r := &TokenRing{tokens: make(map[string]string, len(bearers))}
	for i, b := range bearers {
		r.tokens[strconv.Itoa(i+1)] = b
	}
	return r
}

// Bearer returns the bearer token for id.
func (r *TokenRing) Bearer(id string) (string, error) {
	b, ok := r.tokens[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownToken, id)
	}
	if b == "" {
		return "", fmt.Errorf("%w: token id %s", ErrTokenNotConfigured, id)
	}
	return b, nil
}

// Has reports whether id is a known token id.
func (r *TokenRing) Has(id string) bool {
	_, ok := r.tokens[id]
	return ok
}

// IDs returns the token ids in numeric order.
func (r *TokenRing) IDs() []string {
	ids := make([]string, 0, len(r.tokens))
	for id := range r.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}
