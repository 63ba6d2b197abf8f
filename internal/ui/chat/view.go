// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/turn"
	"github.com/jeranaias/yumchat/internal/util"
)

const timeFormat = "15:04"

// =============================================================================
// MAIN LAYOUT
// =============================================================================

func (m Model) renderChat() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Viewport.Render(m.viewport.View()),
		m.theme.Input.Width(m.width).Render(m.input.View()),
		m.renderStatusBar(),
		m.renderFooter(),
	)
}

// renderFooter shows the full help, the latest notice or the short help.
func (m Model) renderFooter() string {
	switch {
	case m.showHelp:
		return m.theme.Help.Render(m.help.View(m.keys))
	case m.notice != "":
		return m.theme.Notice.Render(util.TruncateWidth(m.notice, max(m.width-2, 1)))
	default:
		return m.theme.Help.Render(m.help.View(m.keys))
	}
}

func (m Model) helpHeight() int {
	return lipgloss.Height(m.renderFooter())
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	conv := m.session.Conversation()
	sep := m.theme.StatusBar.Render("|")

	parts := []string{
		m.theme.StatusModel.Render(conv.Model),
		m.statusState(),
	}

	if tps := m.currentRate(); tps > 0 {
		parts = append(parts, m.theme.StatusBar.Render(util.FormatRate(tps)))
	}

	usage := "ctx " + util.FormatPercent(conv.ContextUsagePercentage()) +
		" (" + util.FormatCount(conv.TotalTokensUsed()) + "/" + util.FormatCount(conv.ContextWindow) + ")"
	if conv.IsContextNearLimit() {
		parts = append(parts, m.theme.StatusActive.Render(usage))
	} else {
		parts = append(parts, m.theme.StatusBar.Render(usage))
	}

	bar := strings.Join(parts, sep)
	return m.theme.StatusBar.Width(m.width).Render(bar)
}

func (m Model) statusState() string {
	switch {
	case m.session.Busy():
		label := " streaming"
		if m.session.Current().Snapshot().InReasoningSpan {
			label = " thinking"
		}
		return m.theme.StatusActive.Render(m.spinner.View() + label)
	case m.ollamaErr != nil:
		return m.theme.StatusActive.Render("ollama offline")
	default:
		return m.theme.StatusBar.Render("ready")
	}
}

// currentRate is the live rate while streaming, else the last response's.
func (m Model) currentRate() float64 {
	if m.session.Busy() {
		return m.session.Current().Snapshot().TokensPerSecond
	}
	msgs := m.session.Conversation().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && msgs[i].TokensPerSec > 0 {
			return msgs[i].TokensPerSec
		}
	}
	return 0
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderTranscript(width int) string {
	conv := m.session.Conversation()
	if conv.IsEmpty() {
		return m.theme.Meta.Render("Chatting with " + conv.Model + ". Press C-h for help.")
	}

	var streaming *model.Message
	if cur := m.session.Current(); cur != nil && !cur.Finished() {
		streaming = cur.Message()
	}

	blocks := make([]string, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		blocks = append(blocks, m.renderMessage(msg, msg == streaming, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg *model.Message, streaming bool, width int) string {
	var b strings.Builder

	b.WriteString(m.roleLabel(msg.Role))
	b.WriteString(m.theme.Meta.Render("  " + msg.Timestamp.Format(timeFormat)))
	b.WriteString("\n")

	content := msg.GetDisplayContent()
	switch {
	case msg.IsError():
		b.WriteString(m.theme.ErrorText.Width(width).Render(content))
	case content != "":
		b.WriteString(m.renderContent(content, width))
	}

	if streaming {
		if m.session.Current().Snapshot().InReasoningSpan && !m.session.ShowReasoning() {
			b.WriteString("\n" + m.theme.Reasoning.Render(m.spinner.View()+" thinking..."))
		} else if content == "" {
			b.WriteString(m.theme.MessageBody.Render(m.spinner.View()))
		}
	} else if stats := msg.FormatStats(); stats != "" {
		b.WriteString("\n" + m.theme.Meta.PaddingLeft(2).Render(stats))
	}

	return b.String()
}

func (m Model) roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return m.theme.UserLabel.Render("You")
	case model.RoleAssistant:
		return m.theme.AssistantLabel.Render(role.DisplayName())
	default:
		return m.theme.SystemLabel.Render(role.DisplayName())
	}
}

// renderContent styles reasoning spans apart from answer text. An open span
// without its close marker runs to the end of the content.
func (m Model) renderContent(content string, width int) string {
	var parts []string
	answer := m.theme.MessageBody.Width(width)
	reasoning := m.theme.Reasoning.Width(width)

	for content != "" {
		open := strings.Index(content, turn.ReasoningOpenMarker)
		if open < 0 {
			parts = append(parts, answer.Render(content))
			break
		}
		if open > 0 {
			parts = append(parts, answer.Render(content[:open]))
		}
		content = content[open+len(turn.ReasoningOpenMarker):]

		end := strings.Index(content, turn.ReasoningCloseMarker)
		if end < 0 {
			parts = append(parts, reasoning.Render(content))
			break
		}
		parts = append(parts, reasoning.Render(content[:end]))
		content = content[end+len(turn.ReasoningCloseMarker):]
	}

	return strings.Join(parts, "\n")
}
