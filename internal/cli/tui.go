// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/config"
	"github.com/jeranaias/yumchat/internal/ui/chat"
	"github.com/jeranaias/yumchat/internal/ui/styles"
)

// runTUI opens the full-screen chat.
func runTUI(cmd *cobra.Command, resume resumeOptions) error {
	if !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
		return errors.New("the chat interface needs a terminal; use 'yumchat ask' or 'yumchat chat' instead")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	conv, err := a.conversation(cmd.Context(), resume)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a.serveMetrics(ctx)

	updates := make(chan chat.ConfigReloadedMsg, 1)
	go a.watchConfig(ctx, updates)

	m := chat.New(ctx, chat.Options{
		Session:       a.newSession(conv, a.cfg.ShowThinking),
		Theme:         styles.NewTheme(a.cfg.Theme),
		Health:        a.client,
		ConfigUpdates: updates,
		Logger:        a.logger,
	})

	a.logger.Info("starting tui", "conversation", conv.ID, "model", conv.Model)
	p := tea.NewProgram(m,
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running chat interface: %w", err)
	}
	return nil
}

// watchConfig forwards reloads of the config file to the UI. Only the
// latest reload is kept when the UI falls behind.
func (a *app) watchConfig(ctx context.Context, updates chan chat.ConfigReloadedMsg) {
	err := config.Watch(ctx, a.cfgPath, config.DefaultDebounce, func(cfg *config.Config, err error) {
		select {
		case <-updates:
		default:
		}
		updates <- chat.ConfigReloadedMsg{Config: cfg, Err: err}
	})
	if err != nil {
		a.logger.Warn("config hot reload disabled", "err", err)
	}
}
