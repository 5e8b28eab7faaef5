package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

func TestJournalConsumeJob(t *testing.T) {
	store := &recorderFake{}
	uc := NewJournalUseCase(store)

	err := uc.ConsumeJob(context.Background(), domain.ConversionJob{ID: "j1", Status: domain.JobSucceeded})
	if err != nil {
		t.Fatalf("ConsumeJob() error = %v", err)
	}
	if len(store.jobs) != 1 || store.jobs[0].ID != "j1" {
		t.Fatalf("expected job to be stored, got %+v", store.jobs)
	}
}

func TestJournalRejectsMalformedJobs(t *testing.T) {
	uc := NewJournalUseCase(&recorderFake{})
	for name, job := range map[string]domain.ConversionJob{
		"missing id":     {Status: domain.JobFailed},
		"unknown status": {ID: "j1", Status: "pending"},
	} {
		if err := uc.ConsumeJob(context.Background(), job); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestJournalWrapsStoreErrors(t *testing.T) {
	storeErr := errors.New("db down")
	uc := NewJournalUseCase(&recorderFake{err: storeErr})

	err := uc.ConsumeJob(context.Background(), domain.ConversionJob{ID: "j1", Status: domain.JobFailed})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}
