// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/yumchat/internal/config"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	Reasoning      lipgloss.Style
	ErrorText      lipgloss.Style
	Meta           lipgloss.Style

	// ==========================================================================
	// LAYOUT STYLES
	// ==========================================================================

	Viewport     lipgloss.Style
	Input        lipgloss.Style
	StatusBar    lipgloss.Style
	StatusModel  lipgloss.Style
	StatusActive lipgloss.Style
	Spinner      lipgloss.Style
	Help         lipgloss.Style
	Notice       lipgloss.Style
}

// NewTheme creates a theme from the configured colors.
func NewTheme(cfg config.ThemeConfig) *Theme {
	// Detect terminal capabilities
	colorProfile := termenv.ColorProfile()

	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.Apply(cfg)
	return t
}

// Apply rebuilds every style from cfg. Invalid colors fall back to the
// defaults.
func (t *Theme) Apply(cfg config.ThemeConfig) {
	defaults := config.Default().Theme
	user := Color(cfg.UserMessageColor, Color(defaults.UserMessageColor, nil))
	assistant := Color(cfg.AssistantMessageColor, Color(defaults.AssistantMessageColor, nil))
	border := Color(cfg.BorderColor, Color(defaults.BorderColor, nil))

	// Messages
	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(user)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(assistant)
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(TextMuted)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Reasoning = lipgloss.NewStyle().Foreground(Amber).Italic(true).PaddingLeft(2)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose).PaddingLeft(2)
	t.Meta = lipgloss.NewStyle().Foreground(TextMuted)

	// Layout
	t.Viewport = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(border).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextMuted).
		Background(SurfaceDim).
		Padding(0, 1)

	t.StatusModel = lipgloss.NewStyle().
		Bold(true).
		Foreground(assistant).
		Background(SurfaceDim)

	t.StatusActive = lipgloss.NewStyle().
		Foreground(Amber).
		Background(SurfaceDim)

	t.Spinner = lipgloss.NewStyle().Foreground(Amber)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted).Padding(0, 1)
	t.Notice = lipgloss.NewStyle().Foreground(Rose).Padding(0, 1)
}
