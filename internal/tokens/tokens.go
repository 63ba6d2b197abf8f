// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens provides approximate token accounting for messages and
// context windows.
//
// Counts are heuristics based on whitespace-separated words. They are used
// for throughput display and context usage, never for billing.
package tokens

import "strings"

// RoleOverhead is the fixed per-message cost of role formatting.
const RoleOverhead = 4

// EstimateTokens approximates the token count of text as ceil(words * 1.3).
// Integer arithmetic keeps the rounding exact for every word count.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return (words*13 + 9) / 10
}

// CountMessageTokens is EstimateTokens plus the role overhead. The role
// itself does not change the count.
func CountMessageTokens(content string) int {
	return RoleOverhead + EstimateTokens(content)
}

// CountConversationTokens sums CountMessageTokens over contents.
func CountConversationTokens(contents []string) int {
	total := 0
	for _, c := range contents {
		total += CountMessageTokens(c)
	}
	return total
}

// RemainingTokens returns how much of the context window is left, never
// less than zero.
func RemainingTokens(used, window int) int {
	if used >= window {
		return 0
	}
	return window - used
}

// ContextUsagePercentage returns used as a percentage of window. A zero
// window reports zero.
func ContextUsagePercentage(used, window int) float64 {
	if window <= 0 {
		return 0
	}
	return float64(used) / float64(window) * 100
}
