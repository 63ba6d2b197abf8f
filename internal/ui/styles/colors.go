// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the yumchat TUI.
package styles

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// FIXED PALETTE
// =============================================================================

// Colors not covered by the [theme] section use Lip Gloss AdaptiveColor
// for automatic light/dark detection.
var (
	// Rose - errors and cancelled turns
	Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

	// Amber - reasoning text and warnings
	Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	// SurfaceDim - status bar background
	SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

	// TextPrimary - main content text
	TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

	// TextMuted - hints, timestamps and token counts
	TextMuted = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#7F849C"}
)

// =============================================================================
// CONFIGURED COLORS
// =============================================================================

// ansiIndex maps the [theme] color names to the 16 ANSI palette slots.
var ansiIndex = map[string]int{
	"black":          0,
	"red":            1,
	"green":          2,
	"yellow":         3,
	"blue":           4,
	"magenta":        5,
	"cyan":           6,
	"white":          7,
	"bright_black":   8,
	"bright_red":     9,
	"bright_green":   10,
	"bright_yellow":  11,
	"bright_blue":    12,
	"bright_magenta": 13,
	"bright_cyan":    14,
	"bright_white":   15,
}

// Color converts a configured color (ANSI name, 0-255 index or #RRGGBB)
// to a Lip Gloss color. Unknown values return fallback.
func Color(value string, fallback lipgloss.TerminalColor) lipgloss.TerminalColor {
	v := strings.ToLower(strings.TrimSpace(value))
	if idx, ok := ansiIndex[v]; ok {
		return lipgloss.Color(strconv.Itoa(idx))
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 255 {
		return lipgloss.Color(v)
	}
	if len(v) == 7 && v[0] == '#' {
		if _, err := strconv.ParseUint(v[1:], 16, 32); err == nil {
			return lipgloss.Color(v)
		}
	}
	return fallback
}
