// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/util"
)

const listModelsTimeout = 10 * time.Second

const modelsLongDesc string = `List the models installed in Ollama.

The context column comes from models.json in the config directory and
falls back to context_window from config.toml. The default model is marked
with *.

Examples:
  yumchat models
  yumchat models --json`

// modelRow is one line of "yumchat models".
type modelRow struct {
	Name          string    `json:"name"`
	Size          string    `json:"size"`
	ModifiedAt    time.Time `json:"modified_at"`
	ContextWindow int       `json:"context_window"`
	Default       bool      `json:"default"`
}

func newModelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List installed models",
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), listModelsTimeout)
			defer cancel()

			installed, err := a.client.ListModels(ctx)
			if err != nil {
				return err
			}

			rows := make([]modelRow, 0, len(installed))
			for i := range installed {
				m := &installed[i]
				rows = append(rows, modelRow{
					Name:          m.Name,
					Size:          m.FormatSize(),
					ModifiedAt:    m.ModifiedAt,
					ContextWindow: model.ContextWindowFor(a.models, m.Name, a.cfg.ContextWindow),
					Default:       m.Name == a.cfg.DefaultModel,
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			if len(rows) == 0 {
				fmt.Fprintln(out, "No models installed. Pull one with: ollama pull "+a.cfg.DefaultModel)
				return nil
			}
			fmt.Fprintf(out, "  %-32s  %8s  %8s  %s\n", "NAME", "SIZE", "CONTEXT", "MODIFIED")
			for _, r := range rows {
				mark := " "
				if r.Default {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-32s  %8s  %8d  %s\n",
					mark,
					util.TruncateWidth(r.Name, 32),
					r.Size,
					r.ContextWindow,
					r.ModifiedAt.Format("2006-01-02"),
				)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
