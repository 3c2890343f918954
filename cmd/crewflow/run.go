package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/agent/crews"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the crew with the built-in input bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.logger.Info("starting crew run",
				zap.String("crew", a.crew.Name),
				zap.String("version", Version),
			)

			result, runErr := a.runner.Run(cmd.Context(), a.crew, crews.DefaultInputs(), crews.RunOptions{})
			printResult(cmd.OutOrStdout(), result, cfg.Crew.Verbose)
			if runErr != nil {
				return fmt.Errorf("run failed: %w", runErr)
			}
			return nil
		},
	}
}

// printResult 输出运行摘要；verbose 时附带每个任务的输出
func printResult(w io.Writer, result *crews.RunResult, verbose bool) {
	if result == nil {
		return
	}

	fmt.Fprintf(w, "Run:    %s\n", result.RunID)
	fmt.Fprintf(w, "Crew:   %s\n", result.Crew)
	fmt.Fprintf(w, "Status: %s\n", result.Status)
	if result.StartAt != "" {
		fmt.Fprintf(w, "Start:  %s\n", result.StartAt)
	}

	if verbose {
		for _, out := range result.Outputs {
			fmt.Fprintf(w, "\n## %s\n%s\n", out.Task, out.Output)
		}
		return
	}
	if result.Final != "" {
		fmt.Fprintf(w, "\n%s\n", result.Final)
	}
}
