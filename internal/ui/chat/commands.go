// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker reports whether the Ollama service answers.
type HealthChecker interface {
	CheckRunning(ctx context.Context) error
}

// tickCmd schedules the next session poll.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// CheckOllamaCmd creates a command that checks if Ollama is running.
func CheckOllamaCmd(checker HealthChecker) tea.Cmd {
	if checker == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()

		err := checker.CheckRunning(ctx)
		return OllamaStatusMsg{Running: err == nil, Error: err}
	}
}

// waitForConfig delivers the next reloaded configuration from updates.
func waitForConfig(updates <-chan ConfigReloadedMsg) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return nil
		}
		return msg
	}
}
