// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the storage, config and
// presentation layers.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file replacement with fsync
//   - TruncateWidth: column-aware truncation for terminal output
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - FormatRate, FormatPercent: status bar number formatting
//
// # Usage
//
//	title := util.TruncateWidth(util.FirstLine(prompt), 50)
//	err := util.AtomicWriteFile(path, data, 0o644)
package util
