// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"regexp"
	"strings"
)

// =============================================================================
// PROBE DEFINITIONS
// =============================================================================

// ProbeType categorizes a probe.
type ProbeType string

const (
	ProbeLatency     ProbeType = "latency"
	ProbeSpeed       ProbeType = "speed"
	ProbeReasoning   ProbeType = "reasoning"
	ProbeInstruction ProbeType = "instruction"
)

// QualityEvaluator scores an answer from 0 to 100.
type QualityEvaluator func(answer string) float64

// Probe is a single benchmark prompt.
type Probe struct {
	Name        string
	Type        ProbeType
	Prompt      string
	Description string
	Evaluator   QualityEvaluator
}

var numberedLine = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)

// StandardProbes returns the default probe suite.
func StandardProbes() []Probe {
	return []Probe{
		{
			Name:        "Latency",
			Type:        ProbeLatency,
			Prompt:      "Say 'Hello'",
			Description: "Time to first token with a minimal prompt",
			Evaluator:   ContainsEvaluator("hello"),
		},
		{
			Name:        "Speed",
			Type:        ProbeSpeed,
			Prompt:      "Write a haiku about programming.",
			Description: "Generation speed on a short creative task",
			Evaluator: func(answer string) float64 {
				lines := strings.Split(strings.TrimSpace(answer), "\n")
				switch {
				case len(lines) >= 3:
					return 100
				case len(answer) > 10:
					return 70
				default:
					return 30
				}
			},
		},
		{
			Name:        "Reasoning",
			Type:        ProbeReasoning,
			Prompt:      "A bat and a ball cost $1.10 in total. The bat costs $1.00 more than the ball. How much does the ball cost?",
			Description: "Reasoning span length and answer accuracy",
			Evaluator: func(answer string) float64 {
				lower := strings.ToLower(answer)
				if strings.Contains(lower, "0.05") || strings.Contains(lower, "5 cents") || strings.Contains(lower, "five cents") {
					return 100
				}
				return 0
			},
		},
		{
			Name:        "Instruction Following",
			Type:        ProbeInstruction,
			Prompt:      "List exactly 3 programming languages. Format: 1. Language",
			Description: "Follows a simple output format",
			Evaluator: func(answer string) float64 {
				switch n := len(numberedLine.FindAllString(answer, -1)); {
				case n == 3:
					return 100
				case n > 0:
					return 50
				default:
					return 0
				}
			},
		},
	}
}

// CustomProbe creates a probe for a user-supplied prompt.
func CustomProbe(name, prompt string) Probe {
	return Probe{Name: name, Type: ProbeSpeed, Prompt: prompt, Description: "Custom prompt"}
}

// ContainsEvaluator scores 100 when the answer contains want, ignoring
// case, and 50 otherwise.
func ContainsEvaluator(want string) QualityEvaluator {
	want = strings.ToLower(want)
	return func(answer string) float64 {
		if strings.Contains(strings.ToLower(answer), want) {
			return 100
		}
		return 50
	}
}
