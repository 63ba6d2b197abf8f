// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const rootLongDesc string = `yumchat is a terminal chat client for models served by a local Ollama.

Run without a command to open the chat interface. Responses stream as they
are generated; reasoning from thinking models can be shown or hidden with
Ctrl+T. Conversations are saved after every response.

Examples:
  yumchat
  yumchat --model llama3.2
  yumchat --continue
  yumchat ask "Why is the sky blue?"
  yumchat chat`

const rootShortDesc string = "Chat with local Ollama models"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	resume := &resumeOptions{}

	cmd := &cobra.Command{
		Use:           "yumchat",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, *resume)
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolP("debug", "d", false, "Enable debug logging")
	flags.StringP("model", "m", "", "Model to use (overrides default_model)")
	flags.String("config", "", "Path to config.toml")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")

	addResumeFlags(cmd, resume)

	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, ErrorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}
