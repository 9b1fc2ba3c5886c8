package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/model"
	"github.com/sells-group/contact-classifier/internal/pipeline"
	"github.com/sells-group/contact-classifier/internal/queue"
	"github.com/sells-group/contact-classifier/internal/store"
)

var (
	runFilePath string
	runLanguage string
	runPoll     time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [job-id]",
	Short: "Drive a job to completion with the in-process queue",
	Long:  "Advances a job through rules, enrichment and AI classification until it is COMPLETED or FAILED. With --file, the contact list is imported first.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(args) == 0 && runFilePath == "" {
			return eris.New("a job id or --file is required")
		}

		env, err := initClassifier(ctx, "classify")
		if err != nil {
			return err
		}
		defer env.Close()

		jobID := ""
		if len(args) == 1 {
			jobID = args[0]
		} else {
			job, err := importFile(ctx, env.Store, runFilePath, runLanguage)
			if err != nil {
				return err
			}
			jobID = job.ID
		}

		job, err := runJob(ctx, env, jobID, runPoll)
		if err != nil {
			return err
		}

		zap.L().Info("job finished",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Int("rows", job.TotalRows),
			zap.Int("ai_rows", job.AIRowsClassified),
			zap.Float64("avg_confidence", job.AvgConfidence),
			zap.Int("needs_review", job.NeedsReviewCount),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", job.ID, job.Status)
		if job.Status == model.JobStatusFailed {
			return eris.Errorf("job %s failed: %s", job.ID, job.ErrorMessage)
		}
		return nil
	},
}

// runJob starts a local queue, enqueues jobID and waits until the job
// reaches a terminal status.
func runJob(ctx context.Context, env *classifierEnv, jobID string, poll time.Duration) (*model.Job, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var orch *pipeline.Orchestrator
	local := queue.NewLocal(func(ctx context.Context, id string) error {
		return orch.Advance(ctx, id)
	}, queue.WithWorkers(cfg.Queue.Workers), queue.WithMetrics(env.Metrics))
	orch = env.Orchestrator(local)

	done := make(chan error, 1)
	go func() { done <- local.Run(ctx) }()

	if err := local.Enqueue(ctx, queue.NewTask(jobID, 0)); err != nil {
		return nil, eris.Wrap(err, "run: enqueue")
	}

	job, err := waitTerminal(ctx, env.Store, jobID, poll)
	cancel()
	<-done
	return job, err
}

func waitTerminal(ctx context.Context, st store.Store, jobID string, poll time.Duration) (*model.Job, error) {
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last *model.Job
	for {
		job, err := st.GetJob(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil && last != nil {
				return last, ctx.Err()
			}
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		last = job
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runFilePath, "file", "", "import this CSV or XLSX file before running")
	runCmd.Flags().StringVar(&runLanguage, "lang", "fr", "job language when importing (fr or en)")
	runCmd.Flags().DurationVar(&runPoll, "poll", time.Second, "job status polling interval")
	rootCmd.AddCommand(runCmd)
}
