package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var advanceCmd = &cobra.Command{
	Use:   "advance <job-id>",
	Short: "Run one pipeline step for a job",
	Long:  "Runs the handler for the job's current status once and exits without scheduling a continuation. Suitable for cron or external schedulers.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClassifier(ctx, "classify")
		if err != nil {
			return err
		}
		defer env.Close()

		tr, err := env.Orchestrator(nil).Step(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("step complete",
			zap.String("job_id", args[0]),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.Bool("progress", tr.Progress),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", tr.From, tr.To)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(advanceCmd)
}
