// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/export"
	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/storage"
)

const historyLongDesc string = `List, show, search, export or delete saved conversations.

Conversations are saved after every response. IDs may be shortened to any
unique prefix, as printed by "yumchat history".

Examples:
  yumchat history
  yumchat history --search kubernetes
  yumchat history show 3f2a9c1b
  yumchat history export 3f2a9c1b --format json
  yumchat history delete 3f2a9c1b`

const historyShortDesc string = "Manage saved conversations"

func newHistoryCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.Store) error {
				metas, err := storage.Search(ctx, store, query)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(storage.FormatList(metas), "\n"))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "search", "s", "", "Only list conversations whose summary contains this text")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.Store) error {
				id, err := resolveID(ctx, store, args[0])
				if err != nil {
					return err
				}
				conv, err := store.Load(ctx, id)
				if err != nil {
					return err
				}
				printConversation(cmd, conv)
				return nil
			})
		},
	})

	cmd.AddCommand(newHistoryExportCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.Store) error {
				id, err := resolveID(ctx, store, args[0])
				if err != nil {
					return err
				}
				if err := store.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("[OK]"), "Deleted", id)
				return nil
			})
		},
	})

	return cmd
}

// withStore runs fn with the configured store.
func withStore(cmd *cobra.Command, fn func(context.Context, storage.Store) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.store == nil {
		return errors.New("conversation storage is disabled")
	}
	return fn(cmd.Context(), a.store)
}

// resolveID expands a unique ID prefix to the full conversation ID.
func resolveID(ctx context.Context, store storage.Store, prefix string) (string, error) {
	metas, err := store.List(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, m := range metas {
		if m.ID == prefix {
			return m.ID, nil
		}
		if strings.HasPrefix(m.ID, prefix) {
			matches = append(matches, m.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", storage.ErrConversationNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous conversation ID %q matches %d conversations", prefix, len(matches))
	}
}

type exportOptions struct {
	format     string
	outputDir  string
	noThinking bool
	stdout     bool
}

func newHistoryExportCmd() *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved conversation to Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store storage.Store) error {
				id, err := resolveID(ctx, store, args[0])
				if err != nil {
					return err
				}
				conv, err := store.Load(ctx, id)
				if err != nil {
					return err
				}
				return exportConversation(cmd, conv, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "md", "Export format: md or json")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", ".", "Directory to write the export to")
	cmd.Flags().BoolVar(&opts.noThinking, "no-thinking", false, "Leave reasoning out of Markdown exports")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "Print the export instead of writing a file")
	return cmd
}

func exportConversation(cmd *cobra.Command, conv *model.Conversation, opts exportOptions) error {
	eo := export.DefaultOptions()
	eo.OutputDir = opts.outputDir
	eo.IncludeReasoning = !opts.noThinking

	exporter, err := export.ForFormat(opts.format, eo)
	if err != nil {
		return err
	}

	if opts.stdout {
		data, err := exporter.Export(conv)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	path, err := export.ExportToFile(conv, exporter, eo)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("[OK]"), "Exported to", path)
	return nil
}

func printConversation(cmd *cobra.Command, conv *model.Conversation) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render(conv.GetSummary()))
	fmt.Fprintln(out, field("ID", conv.ID))
	fmt.Fprintln(out, field("Model", conv.Model))
	fmt.Fprintln(out, field("Updated", conv.UpdatedAt.Format("2006-01-02 15:04")))
	fmt.Fprintln(out)
	out.Write(storage.RenderTranscript(conv.Messages))
}
