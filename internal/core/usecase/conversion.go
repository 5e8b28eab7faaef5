package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
)

const jobRecordTimeout = 5 * time.Second

// Timeouts are per command, not per operation: a split issues one page-count
// query and then one extraction per page.
type Timeouts struct {
	Merge        time.Duration
	PageCount    time.Duration
	Split        time.Duration
	Compress     time.Duration
	Rasterize    time.Duration
	ImageCompose time.Duration
	Edit         time.Duration
	Office       time.Duration
	Text         time.Duration
	OpenSSL      time.Duration
	Sign         time.Duration
	Watermark    time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Merge:        60 * time.Second,
		PageCount:    10 * time.Second,
		Split:        30 * time.Second,
		Compress:     120 * time.Second,
		Rasterize:    120 * time.Second,
		ImageCompose: 120 * time.Second,
		Edit:         60 * time.Second,
		Office:       180 * time.Second,
		Text:         120 * time.Second,
		OpenSSL:      30 * time.Second,
		Sign:         60 * time.Second,
		Watermark:    120 * time.Second,
	}
}

// Max is the longest single command timeout.
func (t Timeouts) Max() time.Duration {
	return max(
		t.Merge, t.PageCount, t.Split, t.Compress, t.Rasterize, t.ImageCompose,
		t.Edit, t.Office, t.Text, t.OpenSSL, t.Sign, t.Watermark,
	)
}

// ConversionObserver receives one observation per finished operation.
type ConversionObserver interface {
	ObserveConversion(operation, status string, duration time.Duration)
}

type ConversionDeps struct {
	Runner    ports.CommandRunner
	Escaper   ports.ArgumentEscaper
	Tools     ports.ToolRegistry
	Files     ports.FileManager
	Inspector ports.ContentInspector
	Verifier  ports.OutputVerifier
	Pages     ports.PageCounter
	Props     ports.PropertyWriter
	Recorder  ports.JobRecorder
	Observer  ConversionObserver
}

type ConversionUseCase struct {
	runner         ports.CommandRunner
	escaper        ports.ArgumentEscaper
	tools          ports.ToolRegistry
	files          ports.FileManager
	inspector      ports.ContentInspector
	verifier       ports.OutputVerifier
	pages          ports.PageCounter
	props          ports.PropertyWriter
	recorder       ports.JobRecorder
	observer       ConversionObserver
	timeouts       Timeouts
	maxFileBytes   int64
	maxOutputBytes int
	now            func() time.Time
}

func NewConversionUseCase(deps ConversionDeps, timeouts Timeouts, maxFileBytes int64, maxOutputBytes int) *ConversionUseCase {
	return &ConversionUseCase{
		runner:         deps.Runner,
		escaper:        deps.Escaper,
		tools:          deps.Tools,
		files:          deps.Files,
		inspector:      deps.Inspector,
		verifier:       deps.Verifier,
		pages:          deps.Pages,
		props:          deps.Props,
		recorder:       deps.Recorder,
		observer:       deps.Observer,
		timeouts:       timeouts,
		maxFileBytes:   maxFileBytes,
		maxOutputBytes: maxOutputBytes,
		now:            time.Now,
	}
}

// Release deletes every file a successful result still owns. Safe to call twice.
func (uc *ConversionUseCase) Release(ctx context.Context, result *domain.ConversionResult) {
	if result == nil {
		return
	}
	uc.files.DeleteMany(context.WithoutCancel(ctx), result.Paths())
}

type operationFunc func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error)

// run drives one operation through the pipeline. On failure every registered
// input, intermediate and output is deleted before returning. On success only
// intermediates are deleted; inputs and artifacts belong to the result until Release.
func (uc *ConversionUseCase) run(
	ctx context.Context,
	op domain.Operation,
	inputs []domain.UploadedFile,
	fn operationFunc,
) (*domain.ConversionResult, error) {
	started := uc.now()
	p := newPipeline(uc, op, inputs)

	artifacts, err := fn(ctx, p)
	cleanupCtx := context.WithoutCancel(ctx)
	if err != nil {
		p.fail(cleanupCtx, err)
		uc.finish(ctx, p, started, nil, err)
		return nil, err
	}
	p.done(cleanupCtx)

	result := &domain.ConversionResult{
		JobID:     p.jobID,
		Operation: op,
		Inputs:    inputs,
		Artifacts: artifacts,
		Metadata:  p.metadata,
		Duration:  uc.now().Sub(started),
	}
	uc.finish(ctx, p, started, result, nil)
	return result, nil
}

func (uc *ConversionUseCase) finish(
	ctx context.Context,
	p *pipeline,
	started time.Time,
	result *domain.ConversionResult,
	err error,
) {
	finished := uc.now()
	duration := finished.Sub(started)

	job := domain.ConversionJob{
		ID:         p.jobID,
		RequestID:  domain.RequestIDFromContext(ctx),
		Operation:  p.op,
		Status:     domain.JobSucceeded,
		DurationMS: duration.Milliseconds(),
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	for _, in := range p.inputs {
		job.InputNames = append(job.InputNames, in.OriginalName)
		job.InputBytes += in.SizeBytes
	}
	if result != nil {
		job.OutputCount = len(result.Artifacts)
		for _, a := range result.Artifacts {
			job.OutputBytes += a.SizeBytes
		}
	}
	if err != nil {
		job.Status = domain.JobFailed
		job.ErrorKind = domain.KindOf(err)
		job.Error = err.Error()
		slog.Warn("conversion_failed",
			"job_id", job.ID,
			"request_id", job.RequestID,
			"operation", string(p.op),
			"stage", string(p.stage),
			"error_kind", job.ErrorKind,
			"error", err,
		)
	} else {
		slog.Info("conversion_completed",
			"job_id", job.ID,
			"request_id", job.RequestID,
			"operation", string(p.op),
			"outputs", job.OutputCount,
			"duration_ms", job.DurationMS,
		)
	}

	if uc.observer != nil {
		uc.observer.ObserveConversion(string(p.op), string(job.Status), duration)
	}
	if uc.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobRecordTimeout)
	defer cancel()
	if recErr := uc.recorder.RecordJob(recordCtx, job); recErr != nil {
		slog.Warn("job_record_failed", "job_id", job.ID, "error", recErr)
	}
}

func newJobID() string {
	return uuid.NewString()
}
