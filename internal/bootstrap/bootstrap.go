package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/pdf-converter/internal/config"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
	"github.com/kirillkom/pdf-converter/internal/core/usecase"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/inspect"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/pdfinfo"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/process"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/shell"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-converter/internal/infrastructure/tools"
	"github.com/kirillkom/pdf-converter/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Storage   *localfs.Storage
	Tools     *tools.Registry
	Converter *usecase.ConversionUseCase

	closeFn func()
}

// New assembles the conversion API. Tools are checked once here; a missing
// tool degrades the health report but does not stop startup.
func New(ctx context.Context, cfg config.Config, httpMetrics *metrics.HTTPServerMetrics) (*App, error) {
	var storeObserver localfs.Observer
	var runnerOpts []process.Option
	if httpMetrics != nil {
		storeObserver = httpMetrics
		runnerOpts = append(runnerOpts, process.WithObserver(httpMetrics))
	}
	runnerOpts = append(runnerOpts, process.WithDefaults(cfg.Timeouts.Max(), cfg.MaxOutputBytes))

	storage, err := localfs.New(localfs.Options{
		UploadDir:    cfg.UploadDir,
		OutputDir:    cfg.OutputDir,
		WorkDir:      cfg.WorkDir,
		TTL:          cfg.FileTTL,
		MaxFileBytes: cfg.MaxFileSize,
		Observer:     storeObserver,
	})
	if err != nil {
		return nil, fmt.Errorf("init scratch storage: %w", err)
	}

	runner := process.NewRunner(runnerOpts...)
	registry := tools.NewRegistry(cfg.ToolPaths, runner)
	registry.ValidateAll(ctx)

	breakers := resilience.NewExecutor(breakerConfig(cfg))
	if httpMetrics != nil {
		breakers.OnStateChange(httpMetrics.ObserveBreakerState)
	}

	recorder, closeRecorder, err := openRecorder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := usecase.ConversionDeps{
		Runner:    process.NewGuardedRunner(runner, breakers),
		Escaper:   shell.NewEscaper(),
		Tools:     registry,
		Files:     storage,
		Inspector: inspect.NewDetector(),
		Verifier:  inspect.NewVerifier(),
		Pages:     pdfinfo.NewCounter(),
		Props:     pdfinfo.NewPropertyWriter(),
		Recorder:  recorder,
	}
	if httpMetrics != nil {
		deps.Observer = httpMetrics
	}
	converter := usecase.NewConversionUseCase(deps, cfg.Timeouts, cfg.MaxFileSize, cfg.MaxOutputBytes)

	return &App{
		Config:    cfg,
		Storage:   storage,
		Tools:     registry,
		Converter: converter,
		closeFn:   closeRecorder,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func breakerConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.BreakerEnabled = cfg.ToolBreakerEnabled
	if cfg.ToolBreakerMinRequests > 0 {
		rc.BreakerMinRequests = uint32(cfg.ToolBreakerMinRequests)
	}
	if cfg.ToolBreakerFailureRatio > 0 {
		rc.BreakerFailureRatio = cfg.ToolBreakerFailureRatio
	}
	if cfg.ToolBreakerOpenTimeout > 0 {
		rc.BreakerOpenTimeout = cfg.ToolBreakerOpenTimeout
	}
	return rc
}

// openRecorder picks the job journal sink. NATS wins over a direct Postgres
// write so the API never blocks on the database; with neither configured the
// journal is off.
func openRecorder(ctx context.Context, cfg config.Config) (ports.JobRecorder, func(), error) {
	switch {
	case cfg.NATSURL != "":
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.PublishConfig()),
			ClientName:         "pdf-converter-api",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init job queue: %w", err)
		}
		slog.Info("job_journal", "sink", "nats", "subject", cfg.NATSSubject)
		return queue, queue.Close, nil
	case cfg.PostgresDSN != "":
		db, repo, err := openJobRepository(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("job_journal", "sink", "postgres")
		return repo, func() { _ = db.Close() }, nil
	default:
		slog.Info("job_journal", "sink", "disabled")
		return nil, func() {}, nil
	}
}

func openJobRepository(ctx context.Context, dsn string) (*sql.DB, *postgres.JobRepository, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewJobRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

// Worker persists the job journal delivered over NATS.
type Worker struct {
	Queue   *nats.Queue
	Journal *usecase.JournalUseCase

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	if cfg.NATSURL == "" || cfg.PostgresDSN == "" {
		return nil, errors.New("worker needs both NATS_URL and POSTGRES_DSN")
	}
	db, repo, err := openJobRepository(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ClientName: "pdf-converter-worker"})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init job queue: %w", err)
	}
	return &Worker{
		Queue:   queue,
		Journal: usecase.NewJournalUseCase(repo),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
