// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/ollama"
)

const (
	defaultStartWait = 30 * time.Second
	healthTimeout    = 5 * time.Second
)

const statusLongDesc string = `Show configuration and check that Ollama answers.

With --start a local "ollama serve" is launched when the server is not
running, and the command waits for it to become ready.

Examples:
  yumchat status
  yumchat status --start --wait 1m`

type statusOptions struct {
	start bool
	wait  time.Duration
}

func newStatusCmd() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the Ollama server",
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.start, "start", false, "Start Ollama if it is not running")
	cmd.Flags().DurationVar(&opts.wait, "wait", defaultStartWait, "How long --start waits for Ollama")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *statusOptions) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("yumchat status"))
	fmt.Fprintln(out, field("Config", a.cfgPath))
	fmt.Fprintln(out, field("Ollama URL", a.cfg.OllamaURL))
	fmt.Fprintln(out, field("Default model", a.cfg.DefaultModel))

	storageDesc := "disabled"
	if !a.cfg.Storage.Disabled {
		dir, _ := a.cfg.StorageDir()
		storageDesc = a.cfg.Storage.Backend + " (" + dir + ")"
	}
	fmt.Fprintln(out, field("Storage", storageDesc))
	if path, err := a.cfg.LogPath(); err == nil {
		fmt.Fprintln(out, field("Log file", path))
	}

	ctx := cmd.Context()
	if opts.start {
		ctx, cancel := context.WithTimeout(ctx, opts.wait+healthTimeout)
		defer cancel()
		err = a.client.EnsureRunning(ctx, opts.wait)
	} else {
		ctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		err = a.client.CheckRunning(ctx)
	}
	if err != nil {
		fmt.Fprintln(out, LabelStyle.Render("Ollama")+ErrorStyle.Render("not running"))
		if !opts.start {
			fmt.Fprintln(out, DimStyle.Render("Start it with: ollama serve (or yumchat status --start)"))
		}
		return err
	}
	fmt.Fprintln(out, LabelStyle.Render("Ollama")+SuccessStyle.Render("running"))

	showCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	info, err := a.client.ShowModel(showCtx, a.cfg.DefaultModel)
	switch {
	case ollama.IsModelNotFound(err):
		fmt.Fprintln(out, LabelStyle.Render("Model")+WarningStyle.Render("not installed (ollama pull "+a.cfg.DefaultModel+")"))
	case err != nil:
		fmt.Fprintln(out, LabelStyle.Render("Model")+WarningStyle.Render(err.Error()))
	case info.SupportsThinking():
		fmt.Fprintln(out, field("Model", "installed, supports thinking"))
	default:
		fmt.Fprintln(out, field("Model", "installed"))
	}
	return nil
}
