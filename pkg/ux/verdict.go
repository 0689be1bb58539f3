// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/tweetcheck/services/factcheck"
	"github.com/AleutianAI/tweetcheck/services/twitter"
)

// Verdict prints an Outcome: a verdict box, or an error box when the run
// failed. JSON mode writes the Outcome's wire form.
func (p *Printer) Verdict(o factcheck.Outcome) error {
	if p.mode == ModeJSON {
		return p.JSON(o)
	}
	if o.Failed() {
		p.box(true, "Fact-check failed", o.Error)
		return nil
	}

	v := o.Verdict
	var b strings.Builder
	if p.mode == ModeRich {
		b.WriteString(verdictStyle(v.FinalVerdict).Render(v.FinalVerdict))
		b.WriteString("\n")
		b.WriteString(ScoreBar(v.OverallScore, 30))
		b.WriteString(Styles.Muted.Render(fmt.Sprintf("  %d/100", v.OverallScore)))
	} else {
		fmt.Fprintf(&b, "Score: %d/100", v.OverallScore)
	}
	b.WriteString("\n\n")
	b.WriteString(v.Reason)

	title := "Verdict"
	if p.mode == ModePlain {
		title = "Verdict: " + v.FinalVerdict
	}
	p.box(false, title, b.String())
	return nil
}

// Report prints the verdict followed by every intermediate result of the
// run and the per-stage timings.
func (p *Printer) Report(r *factcheck.Report) error {
	if p.mode == ModeJSON {
		return p.JSON(r)
	}
	if err := p.Verdict(r.Outcome); err != nil {
		return err
	}
	s := r.State

	p.section("Claims")
	if claims, ok := s.TextClaim.Get(); !ok {
		p.line(IconError, "not produced")
	} else if claims.Error != "" {
		p.line(IconError, claims.Error)
	} else if len(claims.Points) == 0 {
		p.line(IconBullet, "no checkable claims")
	} else {
		for _, point := range claims.Points {
			p.line(IconBullet, point)
		}
	}

	p.section("Account")
	if account, ok := s.AccountAnalysis.Get(); ok {
		p.paragraph(account)
	} else {
		p.line(IconError, "not produced")
	}

	p.section("Sources")
	summaries := s.Summaries.OrZero()
	if len(summaries) == 0 {
		p.line(IconBullet, factcheck.NoEvidenceMessage)
	}
	for _, sum := range summaries {
		if sum.Error != "" {
			p.line(IconError, sum.Link+" "+p.muted("("+sum.Error+")"))
			continue
		}
		p.line(IconArrow, sum.Link)
		p.paragraph(sum.Summary)
	}

	p.section("Verification")
	if ver, ok := s.Verification.Get(); !ok {
		p.line(IconError, "not produced")
	} else if ver.Error != "" {
		p.line(IconError, ver.Error)
	} else {
		p.line(IconBullet, ver.OverallVerdict)
	}

	if r.Run != nil && len(r.Run.NodeDurations) > 0 {
		p.section("Timings")
		names := make([]string, 0, len(r.Run.NodeDurations))
		for name := range r.Run.NodeDurations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d := r.Run.NodeDurations[name].Round(time.Millisecond)
			fmt.Fprintf(p.out, "  %-16s %s\n", name, p.muted(d.String()))
		}
		fmt.Fprintf(p.out, "  %-16s %s\n", "total", r.Run.Duration.Round(time.Millisecond))
	}
	return nil
}

// Tweet prints the looked-up tweet.
func (p *Printer) Tweet(t *twitter.Tweet) error {
	if p.mode == ModeJSON {
		return p.JSON(t)
	}
	var b strings.Builder
	b.WriteString(t.Text)
	b.WriteString("\n\n")
	b.WriteString(p.muted(fmt.Sprintf("♥ %d  ⟲ %d  ↩ %d  %s",
		t.Likes, t.Retweets, t.Replies, t.CreatedAt.Format("2006-01-02 15:04"))))
	for _, m := range t.Media {
		b.WriteString("\n")
		b.WriteString(p.muted(m.Type + " " + m.URL))
	}
	p.box(false, fmt.Sprintf("%s (@%s)", t.Name, t.Username), b.String())
	return nil
}

// ScoreBar renders score (0..100) as a bar of width cells, colored like
// the verdict band the score falls into.
func ScoreBar(score, width int) string {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	filled := score * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(scoreColor(score)).Render(bar)
}

func scoreColor(score int) lipgloss.Color {
	switch {
	case score >= 80:
		return ColorTrue
	case score >= 60:
		return ColorLikely
	case score >= 40:
		return ColorWarning
	case score >= 20:
		return ColorFalse
	default:
		return ColorError
	}
}

func verdictStyle(label string) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch label {
	case factcheck.VerdictVerifiedTrue:
		return style.Foreground(ColorTrue)
	case factcheck.VerdictLikelyTrue:
		return style.Foreground(ColorLikely)
	case factcheck.VerdictMisleading:
		return style.Foreground(ColorWarning)
	case factcheck.VerdictLikelyFalse:
		return style.Foreground(ColorFalse)
	case factcheck.VerdictVerifiedFalse:
		return style.Foreground(ColorError)
	default:
		return style.Foreground(ColorSlate)
	}
}

func (p *Printer) box(isError bool, title, content string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "%s\n%s\n", title, content)
		return
	}
	style, titleStyle := Styles.Box, Styles.Title
	if isError {
		style, titleStyle = Styles.ErrorBox, Styles.Error.Bold(true)
	}
	fmt.Fprintln(p.out, style.Width(boxWidth).Render(titleStyle.Render(title)+"\n"+content))
}

func (p *Printer) section(name string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "\n%s\n", strings.ToUpper(name))
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", Styles.Heading.Render(name))
}

func (p *Printer) line(icon Icon, text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "  %s %s\n", icon, text)
		return
	}
	fmt.Fprintf(p.out, "  %s %s\n", icon.Render(), text)
}

func (p *Printer) paragraph(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "    %s\n", text)
		return
	}
	fmt.Fprintln(p.out, lipgloss.NewStyle().Width(boxWidth-4).PaddingLeft(4).Render(text))
}

func (p *Printer) muted(text string) string {
	if p.mode == ModePlain {
		return text
	}
	return Styles.Muted.Render(text)
}
