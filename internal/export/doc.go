// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved conversations for use outside yumchat.
//
// # Supported Formats
//
//   - Markdown: human-readable, with YAML frontmatter and per-turn stats
//   - JSON: the full conversation structure, suitable for re-import
//
// # Usage
//
//	exporter, err := export.ForFormat("md", export.DefaultOptions())
//	data, err := exporter.Export(conv)
//
// ExportToFile writes the result next to other exports with a name derived
// from the conversation summary.
package export
