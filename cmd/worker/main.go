package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/pdf-converter/internal/bootstrap"
	"github.com/kirillkom/pdf-converter/internal/config"
	"github.com/kirillkom/pdf-converter/internal/core/domain"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
	"github.com/kirillkom/pdf-converter/internal/observability/logging"
	"github.com/kirillkom/pdf-converter/internal/observability/metrics"
)

const journalTimeout = 30 * time.Second

// instrumentedConsumer reports every journal write to the worker metrics.
type instrumentedConsumer struct {
	next    ports.JobConsumer
	metrics *metrics.WorkerMetrics
}

func (c instrumentedConsumer) ConsumeJob(ctx context.Context, job domain.ConversionJob) error {
	c.metrics.StartJob()
	started := time.Now()
	if !job.FinishedAt.IsZero() {
		c.metrics.ObserveJournalLag(started.Sub(job.FinishedAt))
	}

	jobCtx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	err := c.next.ConsumeJob(jobCtx, job)
	c.metrics.FinishJob(time.Since(started), err)
	return err
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	consumer := instrumentedConsumer{next: worker.Journal, metrics: workerMetrics}
	if err := worker.Queue.SubscribeJobs(ctx, consumer); err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		worker.Close()
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}
