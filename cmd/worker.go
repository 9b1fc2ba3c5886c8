package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-classifier/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume job continuations from NATS",
	Long:  "Joins the NATS queue group, runs each received job step on a bounded local pool, and publishes continuations back to NATS.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initClassifier(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		nq, err := newNATSQueue(env)
		if err != nil {
			return err
		}
		defer nq.Close()

		orch := env.Orchestrator(nq)
		local := queue.NewLocal(orch.Advance,
			queue.WithWorkers(cfg.Queue.Workers),
			queue.WithMetrics(env.Metrics),
		)

		zap.L().Info("worker started",
			zap.String("nats", cfg.NATS.URL),
			zap.Int("workers", cfg.Queue.Workers),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return local.Run(gctx) })
		g.Go(func() error { return nq.Consume(gctx, local) })
		return g.Wait()
	},
}

func newNATSQueue(env *classifierEnv) (*queue.NATS, error) {
	return queue.NewNATS(cfg.NATS.URL, queue.NATSOptions{
		Subject:    cfg.NATS.Subject,
		QueueGroup: cfg.NATS.QueueGroup,
		Breaker:    env.Breakers.Get("nats"),
	})
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
