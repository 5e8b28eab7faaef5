package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
)

// JournalUseCase persists conversion jobs delivered by the message bus.
type JournalUseCase struct {
	store ports.JobRecorder
}

func NewJournalUseCase(store ports.JobRecorder) *JournalUseCase {
	return &JournalUseCase{store: store}
}

func (uc *JournalUseCase) ConsumeJob(ctx context.Context, job domain.ConversionJob) error {
	if strings.TrimSpace(job.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "consume job", fmt.Errorf("job id is empty"))
	}
	switch job.Status {
	case domain.JobSucceeded, domain.JobFailed:
	default:
		return domain.WrapError(domain.ErrInvalidInput, "consume job", fmt.Errorf("unknown status %q", job.Status))
	}
	if err := uc.store.RecordJob(ctx, job); err != nil {
		return fmt.Errorf("persist job %s: %w", job.ID, err)
	}
	return nil
}
