// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetcher scrapes readable text from the web pages linked in a tweet.
//
// Fetches carry their own timeout and a browser User-Agent, follow redirects,
// and reduce HTML to its visible text. Concurrent requests for the same URL
// share one HTTP round trip.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/singleflight"
)

// DefaultUserAgent mimics a desktop browser; many sites refuse unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.36"

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrUnsupportedContent is returned for responses that are not text.
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// FetchError describes a failed fetch of URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config controls fetch behaviour.
type Config struct {
	// Timeout bounds the whole request including redirects and body read.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes"`

	// MaxContentChars caps the extracted text handed to summarizers.
	// Zero disables the cap.
	MaxContentChars int `yaml:"max_content_chars" json:"max_content_chars"`
}

// DefaultConfig returns a 10 second timeout, a browser User-Agent, a 5 MiB
// body cap and a 20k character text cap.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		UserAgent:       DefaultUserAgent,
		MaxBodyBytes:    5 << 20,
		MaxContentChars: 20000,
	}
}

// Observer receives one call per completed network fetch.
type Observer interface {
	ObserveFetch(outcome string, duration time.Duration)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) { f.observer = o }
}

// Fetcher retrieves page text. It is safe for concurrent use.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	splitter textsplitter.TextSplitter
	group    singleflight.Group
	logger   *slog.Logger
	observer Observer
}

// New creates a Fetcher. Zero config fields take their DefaultConfig values,
// except MaxContentChars where zero means unbounded.
func New(cfg Config, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	chunk := 1000
	if cfg.MaxContentChars > 0 && cfg.MaxContentChars < chunk {
		chunk = cfg.MaxContentChars
	}
	f.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunk),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)
	return f
}

// Scrape returns the text of rawURL, or an "Error scraping" message in its
// place when the fetch fails. It never returns an error.
func (f *Fetcher) Scrape(ctx context.Context, rawURL string) string {
	text, err := f.Fetch(ctx, rawURL)
	if err != nil {
		f.logger.Error("web scrape failed", "url", rawURL, "error", err)
		return fmt.Sprintf("Error scraping %s: %v", rawURL, err)
	}
	return text
}

// Fetch retrieves rawURL and returns its visible text, bounded to
// MaxContentChars.
//
// Concurrent calls for the same URL share one request. The shared request
// is detached from every caller's cancellation and bounded by Timeout, so a
// caller that gives up returns ctx.Err() without failing the others.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	ch := f.group.DoChan(rawURL, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.Timeout)
		defer cancel()
		return f.fetch(fetchCtx, rawURL)
	})

	select {
	case <-ctx.Done():
		return "", &FetchError{URL: rawURL, Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			f.logger.Debug("fetch shared with concurrent caller", "url", rawURL)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (text string, err error) {
	start := time.Now()
	defer func() {
		if f.observer == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		f.observer.ObserveFetch(outcome, time.Since(start))
	}()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &FetchError{URL: rawURL, Err: ErrInvalidURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body := io.LimitReader(resp.Body, f.cfg.MaxBodyBytes)
	switch kind := contentKind(resp.Header.Get("Content-Type")); kind {
	case "html":
		text, err = ExtractText(body)
		if err != nil {
			return "", &FetchError{URL: rawURL, Err: fmt.Errorf("parse html: %w", err)}
		}
	case "text":
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", &FetchError{URL: rawURL, Err: err}
		}
		text = strings.Join(strings.Fields(string(raw)), " ")
	default:
		return "", &FetchError{URL: rawURL, Err: fmt.Errorf("%w: %s", ErrUnsupportedContent, kind)}
	}

	f.logger.Debug("fetched page", "url", rawURL, "status", resp.StatusCode, "chars", len(text))
	return f.bound(text), nil
}

// contentKind classifies a Content-Type header as "html", "text" or the raw
// media type. A missing header is treated as HTML.
func contentKind(header string) string {
	if header == "" {
		return "html"
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "html"
	}
	switch {
	case strings.Contains(mediaType, "html"), strings.HasSuffix(mediaType, "xml"):
		return "html"
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		return "text"
	default:
		return mediaType
	}
}

// bound trims text to MaxContentChars on chunk boundaries.
func (f *Fetcher) bound(text string) string {
	limit := f.cfg.MaxContentChars
	if limit <= 0 || len(text) <= limit {
		return text
	}

	chunks, err := f.splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return truncateRunes(text, limit)
	}

	var b strings.Builder
	for _, chunk := range chunks {
		extra := len(chunk)
		if b.Len() > 0 {
			extra++
		}
		if b.Len()+extra > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(chunk)
	}
	if b.Len() == 0 {
		return truncateRunes(text, limit)
	}
	return b.String()
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := 0
	for i := range s {
		if i > limit {
			break
		}
		cut = i
	}
	return s[:cut]
}
