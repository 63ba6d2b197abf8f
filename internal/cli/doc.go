// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cli implements the yumchat command line.

	yumchat                   open the chat TUI
	yumchat ask <prompt>      stream one answer to stdout
	yumchat chat              line-edited chat without the TUI
	yumchat models            list installed models
	yumchat status [--start]  check (or start) the Ollama server
	yumchat history           list, show, search, export or delete saved chats
	yumchat config            get, set or list configuration values
	yumchat bench [model...]  measure streaming speed of local models

Every command loads config.toml, opens the log file and the conversation
store, and runs turns through turn.Session so the TUI, the REPL and ask
behave the same way.
*/
package cli
