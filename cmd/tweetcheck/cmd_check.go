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
	"strings"

	"github.com/spf13/cobra"
)

// errOutcomeFailed makes the process exit non-zero after a failed run has
// already been printed.
var errOutcomeFailed = reportedError{errors.New("fact-check failed")}

func newCheckCmd(a *app) *cobra.Command {
	var (
		text     string
		user     string
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fact-check a tweet's text",
		Long: `Runs the full analysis on the given tweet text: claim extraction,
account analysis, scraping and summarizing linked pages, claim
verification and the final verdict.

Output is a styled verdict on a terminal and JSON otherwise.`,
		Example: `  tweetcheck check --user health_facts --text "Coffee adds ten years to your life https://example.com/study"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.newPolicyEngine()
			if err != nil {
				return a.fail(err)
			}
			pipeline, err := a.newPipeline(engine)
			if err != nil {
				return a.fail(err)
			}
			if engine != nil {
				text, _ = engine.Redact(text)
			}

			report := a.runWithSpinner(cmd.Context(), pipeline, text, strings.TrimPrefix(user, "@"))
			if err := a.printResult(report, detailed); err != nil {
				return err
			}
			if report.Outcome.Failed() {
				return errOutcomeFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "tweet text (required)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "author's X handle (required)")
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "show every intermediate result")
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
