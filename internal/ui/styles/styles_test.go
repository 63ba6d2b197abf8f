// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/yumchat/internal/config"
)

func TestColor(t *testing.T) {
	fallback := lipgloss.Color("9")

	tests := []struct {
		in   string
		want lipgloss.TerminalColor
	}{
		{"blue", lipgloss.Color("4")},
		{" Bright_Cyan ", lipgloss.Color("14")},
		{"208", lipgloss.Color("208")},
		{"#A78BFA", lipgloss.Color("#a78bfa")},
		{"256", fallback},
		{"#12345", fallback},
		{"#GGGGGG", fallback},
		{"purple", fallback},
		{"", fallback},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Color(tt.in, fallback))
		})
	}
}

func TestTheme_Apply(t *testing.T) {
	theme := NewTheme(config.Default().Theme)
	assert.Equal(t, lipgloss.Color("4"), theme.UserLabel.GetForeground())
	assert.Equal(t, lipgloss.Color("2"), theme.AssistantLabel.GetForeground())
	assert.Equal(t, lipgloss.Color("6"), theme.Viewport.GetBorderTopForeground())

	theme.Apply(config.ThemeConfig{
		UserMessageColor:      "magenta",
		AssistantMessageColor: "not-a-color",
		BorderColor:           "#112233",
	})
	assert.Equal(t, lipgloss.Color("5"), theme.UserLabel.GetForeground())
	assert.Equal(t, lipgloss.Color("2"), theme.AssistantLabel.GetForeground())
	assert.Equal(t, lipgloss.Color("#112233"), theme.Viewport.GetBorderTopForeground())
}
