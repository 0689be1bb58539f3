// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package twitter fetches tweets from the X API v2 and tracks per-token
// cooldowns so a bearer token is not reused inside its rate window.
package twitter

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrInvalidTweetURL is returned when no numeric tweet id can be found.
	ErrInvalidTweetURL = errors.New("invalid tweet url")

	// ErrMissingBearer is returned by GetTweet when no bearer token is given.
	ErrMissingBearer = errors.New("bearer token is missing")

	// ErrIncompleteTweet is returned when the API response lacks the tweet
	// text or author.
	ErrIncompleteTweet = errors.New("tweet data incomplete")
)

// Tweet is the subset of a tweet the fact-check flow uses.
type Tweet struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Username        string    `json:"username"`
	Name            string    `json:"name"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Likes           int       `json:"likes"`
	Retweets        int       `json:"retweets"`
	Replies         int       `json:"replies"`
	Media           []Media   `json:"media,omitempty"`
}

// Media is one attachment. URL falls back to the preview image for videos.
type Media struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// ParseTweetID returns the id in a tweet URL such as
// https://x.com/user/status/1234567890. A bare numeric id is accepted too.
func ParseTweetID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		s = u.Path
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return "", ErrInvalidTweetURL
	}
	return s, nil
}
