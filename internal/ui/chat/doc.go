// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the main chat view of the yumchat TUI.

The Model wraps a turn.Session in a Bubble Tea program. Streaming never runs
on the UI loop: Submit starts the producer goroutine and a tick command polls
the session, applying whatever events arrived since the last tick.

# Layout

	+--------------------------------------+
	| transcript (viewport)                |
	+--------------------------------------+
	 > input
	 model | state | tok/s | context usage
	 help or notice line

# Keys

	Enter      submit (ignored while a response streams)
	Esc        cancel the running response
	Ctrl+T     show or hide reasoning
	PgUp/PgDn  scroll
	Home/End   jump to top or bottom
	Ctrl+H     toggle full help
	Ctrl+C     quit

Re-rendering during a stream is limited by a rate.Limiter so a fast model
does not redraw the transcript for every token.
*/
package chat
