package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

type consumerFake struct {
	jobs []domain.ConversionJob
	err  error
}

func (f *consumerFake) ConsumeJob(_ context.Context, job domain.ConversionJob) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

func TestHandleMessageDecodesJob(t *testing.T) {
	consumer := &consumerFake{}
	handleMessage(context.Background(), consumer, []byte(`{"id":"j1","operation":"merge","status":"succeeded","input_names":["a.pdf","b.pdf"],"output_count":1}`))

	if len(consumer.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(consumer.jobs))
	}
	job := consumer.jobs[0]
	if job.ID != "j1" || job.Operation != domain.OpMerge || len(job.InputNames) != 2 || job.OutputCount != 1 {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestHandleMessageSkipsGarbage(t *testing.T) {
	consumer := &consumerFake{}
	handleMessage(context.Background(), consumer, []byte("not json"))
	if len(consumer.jobs) != 0 {
		t.Fatalf("expected garbage to be dropped")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable || !c.RecordFailure {
		t.Fatalf("expected closed connection to be retryable, got %+v", c)
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("expected cancellation to be ignored, got %+v", c)
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable || c.RecordFailure {
		t.Fatalf("expected bad subject to be permanent and not held against the broker, got %+v", c)
	}
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrMaxPayload)); c.Retryable || c.RecordFailure {
		t.Fatalf("expected oversized payload to be a job problem, got %+v", c)
	}
	if c := classifyNATSError(errors.New("write: broken pipe")); c.Retryable || !c.RecordFailure {
		t.Fatalf("expected unknown error to count as a failure without retry, got %+v", c)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded(fmt.Errorf("publish: %w", nats.ErrNoServers))
	if !errors.Is(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrNoServers) {
		t.Fatalf("expected temporary wrap, got %v", err)
	}
	permanent := errors.New("payload too large")
	if got := wrapTemporaryIfNeeded(permanent); got != permanent {
		t.Fatalf("expected permanent error unchanged, got %v", got)
	}
}
