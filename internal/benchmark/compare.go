// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"fmt"
	"strings"
	"time"
)

// Comparison holds results from several models.
type Comparison struct {
	Models    []string           `json:"models"`
	Results   map[string]*Result `json:"results"`
	StartTime time.Time          `json:"start_time"`
	Duration  time.Duration      `json:"duration"`
}

// Fastest returns the model with the highest average speed.
func (c *Comparison) Fastest() (string, *Result) {
	return c.best(func(r *Result) float64 { return r.AvgTokensPerSec })
}

// LowestLatency returns the model with the lowest average TTFT.
func (c *Comparison) LowestLatency() (string, *Result) {
	return c.best(func(r *Result) float64 {
		if r.AvgTTFT <= 0 {
			return 0
		}
		return 1 / r.AvgTTFT.Seconds()
	})
}

// HighestQuality returns the model with the best average quality score.
func (c *Comparison) HighestQuality() (string, *Result) {
	return c.best(func(r *Result) float64 { return r.AvgQualityScore })
}

// best walks Models in order so ties go to the first listed model. Scores
// of zero never win.
func (c *Comparison) best(score func(*Result) float64) (string, *Result) {
	var name string
	var top *Result
	var topScore float64
	for _, m := range c.Models {
		r := c.Results[m]
		if r == nil {
			continue
		}
		if s := score(r); s > topScore {
			name, top, topScore = m, r, s
		}
	}
	return name, top
}

// Summary returns a text summary of the comparison.
func (c *Comparison) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Models tested: %d\n", len(c.Models))
	fmt.Fprintf(&sb, "Total duration: %s\n", FormatDuration(c.Duration))

	if name, r := c.Fastest(); r != nil {
		fmt.Fprintf(&sb, "Fastest: %s (%s)\n", name, FormatTokensPerSec(r.AvgTokensPerSec))
	}
	if name, r := c.LowestLatency(); r != nil {
		fmt.Fprintf(&sb, "Lowest latency: %s (%s)\n", name, FormatDuration(r.AvgTTFT))
	}
	if name, r := c.HighestQuality(); r != nil {
		fmt.Fprintf(&sb, "Highest quality: %s (%s)\n", name, FormatQualityScore(r.AvgQualityScore))
	}
	return sb.String()
}
