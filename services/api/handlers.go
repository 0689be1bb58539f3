// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/tweetcheck/services/factcheck"
	"github.com/AleutianAI/tweetcheck/services/policy_engine"
	"github.com/AleutianAI/tweetcheck/services/twitter"
)

// =============================================================================
// Dependencies
// =============================================================================

// Checker runs the fact-check pipeline.
type Checker interface {
	RunDetailed(ctx context.Context, tweetText, username string) (*factcheck.Report, error)
}

// TweetSource looks up tweets under per-token cooldowns.
type TweetSource interface {
	Lookup(ctx context.Context, tweetURL, tokenID string) (*twitter.Tweet, error)
	Remaining(ctx context.Context, tokenID string) (time.Duration, error)
	Touch(ctx context.Context, tokenID string) error
}

// Recorder receives request measurements.
type Recorder interface {
	RecordHTTP(route, method string, code int, duration time.Duration)
	RecordLookup(outcome string)
	RecordRedactions(source string, findings []policy_engine.Finding)
}

// Deps are the collaborators the handlers use. Checker is required; the
// extraction routes are only registered when Tweets is set.
type Deps struct {
	Checker        Checker
	Tweets         TweetSource
	Redactor       factcheck.Redactor
	Recorder       Recorder
	MetricsHandler http.Handler
	Logger         *slog.Logger
	ServiceName    string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.ServiceName == "" {
		d.ServiceName = "tweetcheck"
	}
	return d
}

type nopRecorder struct{}

func (nopRecorder) RecordHTTP(string, string, int, time.Duration) {}

func (nopRecorder) RecordLookup(string) {}

func (nopRecorder) RecordRedactions(string, []policy_engine.Finding) {}

// =============================================================================
// Request Types
// =============================================================================

// FactCheckRequest is the body of POST /v1/factcheck.
type FactCheckRequest struct {
	TweetText string `json:"tweet_text" form:"tweet_text" binding:"required,max=25000"`
	Username  string `json:"username" form:"username" binding:"required,x_handle"`
}

// ExtractRequest is the body of POST /v1/extract. Form posts are accepted
// with the same field names.
type ExtractRequest struct {
	TweetURL string `json:"tweet_url" form:"tweet_url" binding:"required,max=512"`
	TokenID  string `json:"token_id" form:"token_id" binding:"required,numeric"`
}

// ExtractResponse pairs the looked-up tweet with its fact-check outcome.
type ExtractResponse struct {
	Tweet   *twitter.Tweet    `json:"tweet"`
	Verdict factcheck.Outcome `json:"verdict"`
}

// CooldownResponse reports a token's remaining rest time.
type CooldownResponse struct {
	Token            string `json:"token"`
	RemainingMS      int64  `json:"remaining_ms"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

var (
	handlePattern = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)
	validatorOnce sync.Once
)

// registerValidators adds the x_handle tag to gin's validator.
func registerValidators() {
	validatorOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("x_handle", validateHandle)
		}
	})
}

// validateHandle accepts an X username with or without the leading @.
func validateHandle(fl validator.FieldLevel) bool {
	return handlePattern.MatchString(fl.Field().String())
}

// =============================================================================
// Handlers
// =============================================================================

type handler struct {
	deps Deps
}

// HealthCheck answers liveness probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// FactCheck runs the pipeline and returns the Outcome.
func (h *handler) FactCheck(c *gin.Context) {
	report, ok := h.runCheck(c)
	if !ok {
		return
	}
	c.JSON(outcomeStatus(report.Outcome), report.Outcome)
}

// FactCheckDetailed runs the pipeline and returns the full Report.
func (h *handler) FactCheckDetailed(c *gin.Context) {
	report, ok := h.runCheck(c)
	if !ok {
		return
	}
	c.JSON(outcomeStatus(report.Outcome), report)
}

func (h *handler) runCheck(c *gin.Context) (*factcheck.Report, bool) {
	var req FactCheckRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	text := h.redact(req.TweetText)
	report, _ := h.deps.Checker.RunDetailed(c.Request.Context(), text, trimAt(req.Username))
	return report, true
}

// Extract looks up a tweet with the selected token and fact-checks it.
//
// The token's cooldown restarts only once the tweet has been fetched. A
// cooling token answers 429 with the seconds left and a Retry-After header.
func (h *handler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tweet, err := h.deps.Tweets.Lookup(ctx, req.TweetURL, req.TokenID)
	if err != nil {
		h.lookupFailed(c, req.TokenID, err)
		return
	}
	h.deps.Recorder.RecordLookup("success")

	report, _ := h.deps.Checker.RunDetailed(ctx, h.redact(tweet.Text), tweet.Username)
	c.JSON(http.StatusOK, ExtractResponse{Tweet: tweet, Verdict: report.Outcome})
}

func (h *handler) lookupFailed(c *gin.Context, tokenID string, err error) {
	var cooldown *twitter.CooldownError
	switch {
	case errors.As(err, &cooldown):
		h.deps.Recorder.RecordLookup("cooldown")
		secs := int64(cooldown.Remaining / time.Second)
		c.Header("Retry-After", strconv.FormatInt(secs+1, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             cooldown.Error(),
			"token":             tokenID,
			"remaining_seconds": secs,
		})
	case errors.Is(err, twitter.ErrUnknownToken), errors.Is(err, twitter.ErrInvalidTweetURL):
		h.deps.Recorder.RecordLookup("rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, twitter.ErrTokenNotConfigured):
		h.deps.Recorder.RecordLookup("rejected")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.deps.Recorder.RecordLookup("error")
		h.deps.Logger.Error("tweet extraction failed",
			slog.String("token", tokenID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to extract tweet: " + err.Error()})
	}
}

// GetCooldown reports how long a token still rests.
func (h *handler) GetCooldown(c *gin.Context) {
	id := c.Param("id")
	remaining, err := h.deps.Tweets.Remaining(c.Request.Context(), id)
	if err != nil {
		c.JSON(cooldownErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, CooldownResponse{
		Token:            id,
		RemainingMS:      remaining.Milliseconds(),
		RemainingSeconds: int64(remaining / time.Second),
	})
}

// TouchCooldown restarts a token's cooldown.
func (h *handler) TouchCooldown(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Tweets.Touch(c.Request.Context(), id); err != nil {
		c.JSON(cooldownErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token " + id + " cooldown updated"})
}

// redact strips secrets and PII from user-supplied text before it is
// forwarded to a model.
func (h *handler) redact(text string) string {
	if h.deps.Redactor == nil {
		return text
	}
	out, findings := h.deps.Redactor.Redact(text)
	if len(findings) > 0 {
		h.deps.Recorder.RecordRedactions("tweet_text", findings)
		h.deps.Logger.Warn("redacted tweet text", slog.Int("findings", len(findings)))
	}
	return out
}

func outcomeStatus(o factcheck.Outcome) int {
	if o.Failed() {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func cooldownErrorStatus(err error) int {
	if errors.Is(err, twitter.ErrUnknownToken) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func trimAt(username string) string {
	if len(username) > 0 && username[0] == '@' {
		return username[1:]
	}
	return username
}
