package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/types"
)

// errMissingIdentifier 在 replay 未给出标识时返回，此时不会加载任何组件
var errMissingIdentifier = types.InvalidArgument("replay requires a run or task identifier")

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var fromTask string

	cmd := &cobra.Command{
		Use:   "replay <run-id|task-id>",
		Short: "Replay a recorded run from its resume point",
		Long: `Replay re-executes a recorded run using its original input bundle.

A task record id resumes at that task. A run id resumes at the first task
without output; a completed run replays its last task. Outputs of earlier
tasks are loaded from the recorded run instead of being recomputed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			if id == "" {
				return errMissingIdentifier
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.logger.Info("replaying", zap.String("identifier", id), zap.String("from", fromTask))

			var result *crews.RunResult
			if fromTask != "" {
				result, err = a.replayer.ReplayFrom(cmd.Context(), id, fromTask)
			} else {
				result, err = a.replayer.Replay(cmd.Context(), id)
			}
			printResult(cmd.OutOrStdout(), result, cfg.Crew.Verbose)
			if err != nil {
				return fmt.Errorf("replay failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fromTask, "from", "", "Resume at this task name (identifier must be a run id)")

	return cmd
}
