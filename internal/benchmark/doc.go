// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package benchmark measures streaming performance of local models.
//
// Every probe runs as a real turn: the prompt goes through the same
// producer, classifier and assembler as an interactive chat, so the numbers
// reflect what a user sees.
//
// # Key Types
//
//   - Runner: runs the probe suite against one or more models
//   - Probe: a prompt with an optional quality check
//   - Result / ProbeResult: per-model and per-probe measurements
//   - Comparison: results for several models with rankings
//
// # Metrics
//
//   - TTFT: time from submit to the first streamed event
//   - Reasoning time: first reasoning chunk to the end of the span
//   - Speed: estimated tokens per second over the generation
package benchmark
