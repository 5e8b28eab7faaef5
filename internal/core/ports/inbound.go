package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// DocumentConverter is the inbound contract for every conversion operation.
type DocumentConverter interface {
	Merge(ctx context.Context, inputs []domain.UploadedFile) (*domain.ConversionResult, error)
	Split(ctx context.Context, input domain.UploadedFile, opts domain.SplitOptions) (*domain.ConversionResult, error)
	Compress(ctx context.Context, input domain.UploadedFile, opts domain.CompressOptions) (*domain.ConversionResult, error)
	Rasterize(ctx context.Context, input domain.UploadedFile, opts domain.RasterizeOptions) (*domain.ConversionResult, error)
	ComposeImages(ctx context.Context, inputs []domain.UploadedFile, opts domain.ImageComposeOptions) (*domain.ConversionResult, error)
	Edit(ctx context.Context, input domain.UploadedFile, opts domain.EditOptions) (*domain.ConversionResult, error)
	ConvertOffice(ctx context.Context, input domain.UploadedFile, opts domain.OfficeOptions) (*domain.ConversionResult, error)
	Sign(ctx context.Context, input domain.UploadedFile, opts domain.SignOptions) (*domain.ConversionResult, error)
	Watermark(ctx context.Context, input domain.UploadedFile, opts domain.WatermarkOptions) (*domain.ConversionResult, error)
	RenderText(ctx context.Context, input domain.UploadedFile) (*domain.ConversionResult, error)
	// Release deletes every file a successful result still owns.
	Release(ctx context.Context, result *domain.ConversionResult)
}

// UploadReceiver stores request uploads in the scratch uploads directory.
type UploadReceiver interface {
	Receive(ctx context.Context, originalName string, body io.Reader) (domain.UploadedFile, error)
	Discard(ctx context.Context, files []domain.UploadedFile)
}

// ToolStatusReader reports startup tool availability.
type ToolStatusReader interface {
	Statuses() map[string]bool
}

// JobConsumer receives conversion jobs delivered by the message bus.
type JobConsumer interface {
	ConsumeJob(ctx context.Context, job domain.ConversionJob) error
}
