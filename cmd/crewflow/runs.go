package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BaSui01/crewflow/agent/persistence"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var (
		crew   string
		status string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported format %q (supported: table, json)", format)
			}

			store, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			runs, err := store.ListRuns(cmd.Context(), persistence.RunFilter{
				Crew:   crew,
				Status: persistence.RunStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			w := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(w, runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}

			fmt.Fprintf(w, "%-26s %-18s %-10s %-16s %-26s %s\n", "RUN", "CREW", "STATUS", "START", "REPLAY OF", "CREATED")
			for _, run := range runs {
				fmt.Fprintf(w, "%-26s %-18s %-10s %-16s %-26s %s\n",
					run.ID,
					truncate(run.Crew, 18),
					run.Status,
					truncate(run.StartAt, 16),
					dashIfEmpty(run.PreviousRunID),
					run.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&crew, "crew", "", "Only runs of this crew")
	cmd.Flags().StringVar(&status, "status", "", "Only runs in this status (pending, running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	cmd.AddCommand(newRunsShowCmd(opts))

	return cmd
}

func newRunsShowCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its task records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load run %s: %w", args[0], err)
			}

			w := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(w, run)
			}

			fmt.Fprintf(w, "Run %s: %s\n", run.ID, run.Crew)
			fmt.Fprintf(w, "  Status:     %s\n", run.Status)
			fmt.Fprintf(w, "  Start At:   %s\n", dashIfEmpty(run.StartAt))
			fmt.Fprintf(w, "  Replay Of:  %s\n", dashIfEmpty(run.PreviousRunID))
			fmt.Fprintf(w, "  Digest:     %s\n", run.InputDigest)
			if run.Error != "" {
				fmt.Fprintf(w, "  Failed:     %s: %s\n", run.FailedTask, run.Error)
			}
			fmt.Fprintf(w, "  Created:    %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  %-3s %-36s %-18s %s\n", "#", "TASK RECORD", "TASK", "STATUS")
			for _, task := range run.Tasks {
				fmt.Fprintf(w, "  %-3d %-36s %-18s %s\n", task.Index, task.ID, truncate(task.Name, 18), task.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

// openStore 只打开运行记录存储，不装配调用链
func (o *rootOptions) openStore() (persistence.RunStore, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := initLogger(cfg.Log)
	store, err := persistence.NewRunStore(storeConfig(cfg.Store), logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to open run store: %w", err)
	}

	return store, func() {
		_ = store.Close()
		_ = logger.Sync()
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
