// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/turn"
	"github.com/jeranaias/yumchat/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	var sb strings.Builder
	summary := conv.GetSummary()

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(summary))
		fmt.Fprintf(&sb, "id: %s\n", conv.ID)
		fmt.Fprintf(&sb, "model: %s\n", escapeYAML(conv.Model))
		fmt.Fprintf(&sb, "date: %s\n", conv.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", conv.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", conv.MessageCount())
		if conv.TotalTokens > 0 {
			fmt.Fprintf(&sb, "tokens: %d\n", conv.TotalTokens)
		}
		fmt.Fprintf(&sb, "exported: %s\n", e.options.clock().Format(time.RFC3339))
		sb.WriteString("generator: yumchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(summary))

	for i, msg := range conv.Messages {
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", msg.Role.DisplayName(), formatTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", msg.Role.DisplayName())
		}

		sb.WriteString(e.formatMessageContent(msg))
		sb.WriteString("\n\n")

		if e.options.IncludeMetadata {
			if stats := formatMessageStats(msg); stats != "" {
				sb.WriteString(stats)
				sb.WriteString("\n\n")
			}
		}

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func (e *MarkdownExporter) formatMessageContent(msg *model.Message) string {
	content := msg.GetDisplayContent()
	if msg.Role == model.RoleAssistant {
		if e.options.IncludeReasoning {
			content = quoteReasoning(content)
		} else {
			content = StripReasoning(content)
		}
	}
	return strings.TrimSpace(content)
}

// formatMessageStats formats statistics for an assistant message.
func formatMessageStats(msg *model.Message) string {
	if msg.Role != model.RoleAssistant || msg.IsError() {
		return ""
	}

	var parts []string
	if msg.TokenCount > 0 {
		parts = append(parts, fmt.Sprintf("Tokens: %d", msg.TokenCount))
	}
	if msg.TotalDuration > 0 {
		parts = append(parts, "Duration: "+formatDuration(msg.TotalDuration))
	}
	if msg.TokensPerSec > 0 {
		parts = append(parts, "Speed: "+util.FormatRate(msg.TokensPerSec))
	}

	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("<sub>Stats: %s</sub>", strings.Join(parts, " | "))
}

// StripReasoning removes reasoning spans written by the turn assembler. An
// unclosed span runs to the end of the text.
func StripReasoning(content string) string {
	var sb strings.Builder
	for {
		start := strings.Index(content, turn.ReasoningOpenMarker)
		if start < 0 {
			sb.WriteString(content)
			return sb.String()
		}
		sb.WriteString(content[:start])
		rest := content[start+len(turn.ReasoningOpenMarker):]
		end := strings.Index(rest, turn.ReasoningCloseMarker)
		if end < 0 {
			return sb.String()
		}
		content = rest[end+len(turn.ReasoningCloseMarker):]
	}
}

// quoteReasoning turns reasoning spans into Markdown blockquotes.
func quoteReasoning(content string) string {
	var sb strings.Builder
	for {
		start := strings.Index(content, turn.ReasoningOpenMarker)
		if start < 0 {
			sb.WriteString(content)
			return sb.String()
		}
		sb.WriteString(content[:start])
		rest := content[start+len(turn.ReasoningOpenMarker):]
		end := strings.Index(rest, turn.ReasoningCloseMarker)
		span := rest
		if end >= 0 {
			span = rest[:end]
		}

		sb.WriteString("> **Thinking**\n>\n")
		for _, line := range strings.Split(span, "\n") {
			sb.WriteString(strings.TrimRight("> "+line, " "))
			sb.WriteString("\n")
		}

		if end < 0 {
			return sb.String()
		}
		sb.WriteString("\n")
		content = rest[end+len(turn.ReasoningCloseMarker):]
	}
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	).Replace(s)
}

// escapeYAML quotes values that would otherwise break the frontmatter.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.NewReplacer(
			`\`, `\\`,
			`"`, `\"`,
			"\n", `\n`,
			"\r", `\r`,
		).Replace(s)
		return `"` + s + `"`
	}
	return s
}
