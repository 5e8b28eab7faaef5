package httpadapter

import (
	"context"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
)

type runFunc func(ctx context.Context, c ports.DocumentConverter, files []domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error)

type route struct {
	path     string
	field    string
	minFiles int
	maxFiles int
	// archiveSuffix names the zip sent when the result has several artifacts.
	archiveSuffix string
	missing       string
	run           runFunc
}

func (r route) missingMessage() string {
	if r.missing != "" {
		return r.missing
	}
	return "no file uploaded"
}

func single(path string, run func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error)) route {
	return route{
		path:     path,
		field:    "file",
		minFiles: 1,
		maxFiles: 1,
		run: func(ctx context.Context, c ports.DocumentConverter, files []domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
			return run(ctx, c, files[0], p)
		},
	}
}

func office(path string, opts domain.OfficeOptions) route {
	return single(path, func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, _ domain.Params) (*domain.ConversionResult, error) {
		return c.ConvertOffice(ctx, in, opts)
	})
}

func (rt *Router) routes() []route {
	split := single("/api/pdf/split", func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
		opts, err := domain.NewSplitOptions(p)
		if err != nil {
			return nil, err
		}
		return c.Split(ctx, in, opts)
	})
	split.archiveSuffix = "_pages.zip"
	split.missing = "PDF file is required"

	compress := single("/api/pdf/compress", func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
		return c.Compress(ctx, in, domain.NewCompressOptions(p))
	})
	compress.missing = "PDF file is required"

	rasterize := single("/api/image/pdf-to-jpg", func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
		opts, err := domain.NewRasterizeOptions(p)
		if err != nil {
			return nil, err
		}
		return c.Rasterize(ctx, in, opts)
	})
	rasterize.archiveSuffix = "_images.zip"

	return []route{
		{
			path:     "/api/pdf/merge",
			field:    "files",
			minFiles: 2,
			maxFiles: rt.cfg.MaxUploadFiles,
			missing:  "at least 2 PDF files are required for merging",
			run: func(ctx context.Context, c ports.DocumentConverter, files []domain.UploadedFile, _ domain.Params) (*domain.ConversionResult, error) {
				return c.Merge(ctx, files)
			},
		},
		split,
		compress,
		office("/api/convert/pdf-to-word", domain.OfficeOptions{Target: domain.TargetDOCX}),
		office("/api/convert/pdf-to-powerpoint", domain.OfficeOptions{Target: domain.TargetPPTX}),
		office("/api/convert/pdf-to-excel", domain.OfficeOptions{Target: domain.TargetXLSX}),
		office("/api/convert/word-to-pdf", domain.OfficeOptions{Target: domain.TargetPDF, Source: domain.KindWord}),
		office("/api/convert/powerpoint-to-pdf", domain.OfficeOptions{Target: domain.TargetPDF, Source: domain.KindPresentation}),
		office("/api/convert/excel-to-pdf", domain.OfficeOptions{Target: domain.TargetPDF, Source: domain.KindSpreadsheet}),
		rasterize,
		{
			path:     "/api/image/jpg-to-pdf",
			field:    "files",
			minFiles: 1,
			maxFiles: rt.cfg.MaxImageFiles,
			missing:  "at least one image file is required",
			run: func(ctx context.Context, c ports.DocumentConverter, files []domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
				opts, err := domain.NewImageComposeOptions(p)
				if err != nil {
					return nil, err
				}
				return c.ComposeImages(ctx, files, opts)
			},
		},
		single("/api/image/edit-pdf", func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
			opts, err := domain.NewEditOptions(p)
			if err != nil {
				return nil, err
			}
			return c.Edit(ctx, in, opts)
		}),
		single("/api/security/sign-pdf", func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
			opts, err := domain.NewSignOptions(p)
			if err != nil {
				return nil, err
			}
			return c.Sign(ctx, in, opts)
		}),
		single("/api/security/watermark-pdf", func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, p domain.Params) (*domain.ConversionResult, error) {
			opts, err := domain.NewWatermarkOptions(p)
			if err != nil {
				return nil, err
			}
			return c.Watermark(ctx, in, opts)
		}),
		single("/api/security/txt-to-pdf", func(ctx context.Context, c ports.DocumentConverter, in domain.UploadedFile, _ domain.Params) (*domain.ConversionResult, error) {
			return c.RenderText(ctx, in)
		}),
	}
}
