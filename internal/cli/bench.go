// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/benchmark"
)

const benchLongDesc string = `Measure streaming performance of one or more models.

Each probe runs as a normal turn, so the numbers include decoding and
classification. With several models the results are ranked by speed,
latency and answer quality.

Examples:
  yumchat bench
  yumchat bench qwen3:4b mistral
  yumchat bench --prompt "Explain TCP slow start" --json`

const benchShortDesc string = "Benchmark streaming speed of local models"

type benchOptions struct {
	prompt string
	asJSON bool
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench [model...]",
		Short: benchShortDesc,
		Long:  benchLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Run a single custom prompt instead of the standard probes")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output as JSON")

	return cmd
}

func runBench(cmd *cobra.Command, models []string, opts benchOptions) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if len(models) == 0 {
		models = []string{a.cfg.DefaultModel}
	}

	out := cmd.OutOrStdout()
	runnerOpts := []benchmark.RunnerOption{
		benchmark.WithStreamOptions(a.streamOptions()...),
		benchmark.WithLogger(a.logger),
	}
	if opts.prompt != "" {
		runnerOpts = append(runnerOpts, benchmark.WithProbes([]benchmark.Probe{benchmark.CustomProbe("Custom", opts.prompt)}))
	}
	if !opts.asJSON {
		runnerOpts = append(runnerOpts, benchmark.WithProgress(func(_ string, pr benchmark.ProbeResult) {
			printProbe(out, pr)
		}))
	}

	ctx, cancel := cancelOnInterrupt(cmd.Context())
	defer cancel()

	runner := benchmark.NewRunner(a.client, runnerOpts...)
	if !opts.asJSON {
		fmt.Fprintln(out, TitleStyle.Render("Benchmarking "+strings.Join(models, ", ")))
	}

	comparison, err := runner.RunComparison(ctx, models)
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(comparison); encErr != nil {
			return encErr
		}
		return err
	}

	for _, name := range comparison.Models {
		fmt.Fprintln(out)
		fmt.Fprintln(out, comparison.Results[name].Summary())
	}
	if len(comparison.Models) > 1 {
		fmt.Fprintln(out)
		fmt.Fprint(out, comparison.Summary())
	}

	if errors.Is(err, benchmark.ErrAllFailed) {
		return fmt.Errorf("no probe passed; is the model installed? (ollama pull %s)", models[0])
	}
	return err
}

func printProbe(out io.Writer, pr benchmark.ProbeResult) {
	status := SuccessStyle.Render("[OK]  ")
	detail := fmt.Sprintf("ttft %s, %s, %d chunks",
		benchmark.FormatDuration(pr.TTFT),
		benchmark.FormatTokensPerSec(pr.TokensPerSec),
		pr.Chunks,
	)
	if pr.ReasoningTime > 0 {
		detail += ", thinking " + benchmark.FormatDuration(pr.ReasoningTime)
	}
	if pr.Status != benchmark.StatusPassed {
		status = ErrorStyle.Render("[FAIL]")
		detail = pr.Error
	}
	fmt.Fprintf(out, "%s %-22s %s\n", status, pr.Name, DimStyle.Render(detail))
}
