package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/monitoring"
	"github.com/sells-group/contact-classifier/internal/pipeline"
	"github.com/sells-group/contact-classifier/internal/queue"
	"github.com/sells-group/contact-classifier/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long:  "Accepts advance triggers for jobs over HTTP, exposes job state and Prometheus metrics, and re-enqueues stalled jobs. With queue.backend=nats, triggers are published for workers; otherwise they run on an in-process pool.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		env, err := initClassifier(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		var q queue.Enqueuer
		done := make(chan error, 1)
		if cfg.Queue.Backend == "nats" {
			nq, err := newNATSQueue(env)
			if err != nil {
				return err
			}
			defer nq.Close()
			q = nq
			done <- nil
		} else {
			var orch *pipeline.Orchestrator
			local := queue.NewLocal(func(ctx context.Context, id string) error {
				return orch.Advance(ctx, id)
			}, queue.WithWorkers(cfg.Queue.Workers), queue.WithMetrics(env.Metrics))
			orch = env.Orchestrator(local)
			q = local
			go func() { done <- local.Run(ctx) }()
		}

		if interval := cfg.Queue.SweepInterval(); interval > 0 {
			checker := monitoring.NewChecker(monitoring.NewCollector(env.Store, 0), q, interval, cfg.Queue.StaleAfter())
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env.Store, q, env.Metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown error", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("queue", cfg.Queue.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		<-done
		zap.L().Info("server stopped")
		return nil
	},
}

// newRouter builds the HTTP routes. Advance triggers only enqueue; the
// step itself runs wherever q delivers it.
func newRouter(st store.Store, q queue.Enqueuer, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			job, err := st.GetJob(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Post("/advance", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			job, err := st.GetJob(r.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			if job.Status.Terminal() {
				writeJSON(w, http.StatusConflict, map[string]string{
					"error":  "job is " + string(job.Status),
					"job_id": id,
				})
				return
			}
			if err := q.Enqueue(r.Context(), queue.NewTask(id, 0)); err != nil {
				zap.L().Error("advance trigger failed",
					zap.String("job_id", id),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Error(err),
				)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "could not enqueue job"})
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"job_id": id,
			})
		})

		r.Get("/activity", func(w http.ResponseWriter, r *http.Request) {
			limit := 100
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
					return
				}
				limit = n
			}
			entries, err := st.ListActivity(r.Context(), chi.URLParam(r, "id"), limit)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, entries)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	zap.L().Error("store error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server port")
	rootCmd.AddCommand(serveCmd)
}
