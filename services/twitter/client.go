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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the X API v2 root.
const DefaultBaseURL = "https://api.twitter.com/2"

const maxErrorBody = 4096

// APIError is a non-2xx response or an errors array from the X API.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("x api status %d: %s", e.StatusCode, msg)
	}
	return "x api: " + msg
}

// RateLimited reports whether the API refused the call for rate reasons.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Client reads tweets from the X API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a Client with a 15s HTTP timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	Data *struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		AuthorID      string    `json:"author_id"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
		Attachments struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID              string `json:"id"`
			Username        string `json:"username"`
			Name            string `json:"name"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"users"`
		Media []struct {
			MediaKey        string `json:"media_key"`
			Type            string `json:"type"`
			URL             string `json:"url"`
			PreviewImageURL string `json:"preview_image_url"`
		} `json:"media"`
	} `json:"includes"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// GetTweet fetches tweet id with its author and media expanded.
func (c *Client) GetTweet(ctx context.Context, id, bearer string) (*Tweet, error) {
	if bearer == "" {
		return nil, ErrMissingBearer
	}
	if _, err := ParseTweetID(id); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("expansions", "attachments.media_keys,author_id")
	q.Set("tweet.fields", "created_at,public_metrics,text")
	q.Set("media.fields", "url,preview_image_url,type")
	q.Set("user.fields", "username,name,profile_image_url")
	endpoint := fmt.Sprintf("%s/tweets/%s?%s", c.baseURL, url.PathEscape(id), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tweet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("x api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var parsed apiResponse
		if json.Unmarshal(body, &parsed) == nil && len(parsed.Errors) > 0 {
			apiErr.Title, apiErr.Detail = parsed.Errors[0].Title, parsed.Errors[0].Detail
		}
		c.logger.Warn("x api rejected tweet lookup",
			slog.String("tweet_id", id),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode tweet response: %w", err)
	}
	if parsed.Data == nil {
		if len(parsed.Errors) > 0 {
			return nil, &APIError{Title: parsed.Errors[0].Title, Detail: parsed.Errors[0].Detail}
		}
		return nil, ErrIncompleteTweet
	}

	tweet := &Tweet{
		ID:        parsed.Data.ID,
		Text:      parsed.Data.Text,
		CreatedAt: parsed.Data.CreatedAt,
		Likes:     parsed.Data.PublicMetrics.LikeCount,
		Retweets:  parsed.Data.PublicMetrics.RetweetCount,
		Replies:   parsed.Data.PublicMetrics.ReplyCount,
	}
	for _, u := range parsed.Includes.Users {
		if u.ID == parsed.Data.AuthorID || parsed.Data.AuthorID == "" {
			tweet.Username, tweet.Name, tweet.ProfileImageURL = u.Username, u.Name, u.ProfileImageURL
			break
		}
	}
	for _, m := range parsed.Includes.Media {
		mediaURL := m.URL
		if mediaURL == "" {
			mediaURL = m.PreviewImageURL
		}
		tweet.Media = append(tweet.Media, Media{Type: m.Type, URL: mediaURL})
	}

	if tweet.Text == "" || tweet.Username == "" {
		return nil, ErrIncompleteTweet
	}
	c.logger.Debug("tweet fetched",
		slog.String("tweet_id", id),
		slog.String("username", tweet.Username),
		slog.Duration("duration", time.Since(start)),
	)
	return tweet, nil
}

// IsRateLimited reports whether err is an X API rate-limit rejection.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}
