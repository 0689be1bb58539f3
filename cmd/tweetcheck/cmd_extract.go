// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tweetcheck/pkg/ux"
	"github.com/AleutianAI/tweetcheck/services/api"
	"github.com/AleutianAI/tweetcheck/services/twitter"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		token    string
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "extract <tweet-url>",
		Short: "Look up a tweet on X and fact-check it",
		Long: `Fetches the tweet with the selected bearer token and runs the
fact-check on its text and author.

Each token rests for the configured cooldown after a successful lookup.
Set twitter.store_path to keep cooldowns across runs.`,
		Example: `  TWEETCHECK_TOKEN_1=... tweetcheck extract https://x.com/someone/status/1790000000000000001 --token 1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			extractor, closeStore, err := a.newExtractor()
			if err != nil {
				return a.fail(err)
			}
			defer func() { _ = closeStore() }()

			tweet, err := extractor.Lookup(ctx, args[0], token)
			if err != nil {
				var cooldown *twitter.CooldownError
				if errors.As(err, &cooldown) {
					return a.fail(fmt.Errorf("%w (cooldown %s)", err, extractor.Cooldowns().Period().Round(time.Minute)))
				}
				return a.fail(fmt.Errorf("failed to extract tweet: %w", err))
			}

			engine, err := a.newPolicyEngine()
			if err != nil {
				return a.fail(err)
			}
			pipeline, err := a.newPipeline(engine)
			if err != nil {
				return a.fail(err)
			}
			text := tweet.Text
			if engine != nil {
				text, _ = engine.Redact(text)
			}

			if a.printer.Mode() != ux.ModeJSON {
				if err := a.printer.Tweet(tweet); err != nil {
					return err
				}
			}
			report := a.runWithSpinner(ctx, pipeline, text, tweet.Username)

			if a.printer.Mode() == ux.ModeJSON {
				if err := a.printer.JSON(api.ExtractResponse{Tweet: tweet, Verdict: report.Outcome}); err != nil {
					return err
				}
			} else if err := a.printResult(report, detailed); err != nil {
				return err
			}
			if report.Outcome.Failed() {
				return errOutcomeFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "1", "bearer token id to use")
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "show every intermediate result")
	return cmd
}
