package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// Merge concatenates PDFs in upload order.
func (uc *ConversionUseCase) Merge(ctx context.Context, inputs []domain.UploadedFile) (*domain.ConversionResult, error) {
	return uc.run(ctx, domain.OpMerge, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if len(inputs) < 2 {
			return nil, p.invalid("at least 2 PDF files are required, got %d", len(inputs))
		}
		if _, err := p.requireKind(inputs, domain.KindPDF); err != nil {
			return nil, err
		}

		out := p.outputPath("merged.pdf")
		b := p.command(domain.ToolQPDF).flag("--empty", "--pages")
		for _, in := range inputs {
			b.path(in.Path)
		}
		cmd, err := b.flag("--").path(out).build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, cmd, uc.timeouts.Merge); err != nil {
			return nil, err
		}
		p.setMeta("files_merged", strconv.Itoa(len(inputs)))
		return p.finalize(out, "merged.pdf")
	})
}

// Split extracts either every page into its own file or one page range.
func (uc *ConversionUseCase) Split(ctx context.Context, input domain.UploadedFile, opts domain.SplitOptions) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpSplit, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if _, err := p.requireKind(inputs, domain.KindPDF); err != nil {
			return nil, err
		}

		if opts.Mode == domain.SplitRange {
			out := p.outputPath("split.pdf")
			cmd, err := p.command(domain.ToolQPDF).
				path(input.Path).
				flag("--pages", ".").
				value(opts.PageRanges).
				flag("--").
				path(out).
				build()
			if err != nil {
				return nil, err
			}
			if _, err := p.exec(ctx, cmd, uc.timeouts.Split); err != nil {
				return nil, err
			}
			p.setMeta("mode", string(domain.SplitRange))
			p.setMeta("page_ranges", opts.PageRanges)
			return p.finalize(out, "split.pdf")
		}

		pages, err := uc.countPages(ctx, p, input)
		if err != nil {
			return nil, err
		}

		artifacts := make([]domain.OutputArtifact, 0, pages)
		for page := 1; page <= pages; page++ {
			suggested := fmt.Sprintf("page_%d.pdf", page)
			out := p.outputPath(suggested)
			cmd, err := p.command(domain.ToolQPDF).
				path(input.Path).
				flag("--pages", ".", strconv.Itoa(page), "--").
				path(out).
				build()
			if err != nil {
				return nil, err
			}
			if _, err := p.exec(ctx, cmd, uc.timeouts.Split); err != nil {
				return nil, fmt.Errorf("extract page %d: %w", page, err)
			}
			if err := p.locate(out); err != nil {
				return nil, err
			}
			artifact, err := p.verify(out, suggested, page)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, artifact)
		}
		p.setMeta("mode", string(domain.SplitIndividual))
		p.setMeta("pages", strconv.Itoa(pages))
		return artifacts, nil
	})
}

// countPages asks qpdf first and falls back to the in-process reader when
// qpdf fails or prints something that is not a page count.
func (uc *ConversionUseCase) countPages(ctx context.Context, p *pipeline, input domain.UploadedFile) (int, error) {
	cmd, err := p.command(domain.ToolQPDF).flag("--show-npages").path(input.Path).build()
	if err != nil {
		return 0, err
	}
	res, execErr := p.exec(ctx, cmd, uc.timeouts.PageCount)
	if execErr != nil && domain.IsKind(execErr, domain.ErrToolUnavailable) {
		return 0, execErr
	}
	if execErr == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(res.Stdout)); err == nil && n > 0 {
			return n, nil
		}
	}
	if uc.pages == nil {
		if execErr != nil {
			return 0, execErr
		}
		return 0, domain.WrapError(domain.ErrToolExecutionFailed, string(p.op), fmt.Errorf("unexpected page count %q", strings.TrimSpace(res.Stdout)))
	}

	n, err := uc.pages.CountPages(input.Path)
	if err != nil {
		if execErr != nil {
			return 0, execErr
		}
		return 0, fmt.Errorf("%s: %w", p.op, err)
	}
	slog.Debug("page_count_native", "job_id", p.jobID, "pages", n)
	// The query writes no files, so a timeout there leaves nothing for the sweep.
	p.keepOutputs = false
	return n, nil
}

// Compress rewrites the PDF through Ghostscript with a quality preset.
func (uc *ConversionUseCase) Compress(ctx context.Context, input domain.UploadedFile, opts domain.CompressOptions) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpCompress, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if _, err := p.requireKind(inputs, domain.KindPDF); err != nil {
			return nil, err
		}
		quality := domain.NewCompressOptions(domain.Params{"quality": opts.Quality}).Quality

		suggested := input.Stem() + "_compressed.pdf"
		out := p.outputPath(suggested)
		cmd, err := p.command(domain.ToolGhostscript).
			flag("-sDEVICE=pdfwrite", "-dPDFSETTINGS=/"+quality, "-dNOPAUSE", "-dBATCH", "-dQUIET", "-sOutputFile="+out).
			path(input.Path).
			build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, cmd, uc.timeouts.Compress); err != nil {
			return nil, err
		}
		artifacts, err := p.finalize(out, suggested)
		if err != nil {
			return nil, err
		}

		p.setMeta("quality", quality)
		p.setMeta("original_size", strconv.FormatInt(input.SizeBytes, 10))
		p.setMeta("compressed_size", strconv.FormatInt(artifacts[0].SizeBytes, 10))
		if input.SizeBytes > 0 {
			reduction := float64(input.SizeBytes-artifacts[0].SizeBytes) / float64(input.SizeBytes) * 100
			p.setMeta("reduction_percent", strconv.FormatFloat(reduction, 'f', 2, 64))
		}
		return artifacts, nil
	})
}

// Edit rotates pages, keeps a page selection, or removes a password.
func (uc *ConversionUseCase) Edit(ctx context.Context, input domain.UploadedFile, opts domain.EditOptions) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpEdit, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if _, err := p.requireKind(inputs, domain.KindPDF); err != nil {
			return nil, err
		}

		suggested := input.Stem() + "_edited.pdf"
		out := p.outputPath(suggested)
		b := p.command(domain.ToolQPDF)
		switch opts.Operation {
		case domain.EditRotate:
			b.path(input.Path, out).value(fmt.Sprintf("--rotate=%+d:%s", opts.Angle, opts.RotatePages()))
		case domain.EditRemovePages:
			b.path(input.Path).flag("--pages", ".").value(opts.Pages).flag("--").path(out)
		case domain.EditDecrypt:
			b.secret("--password=" + opts.Password).flag("--decrypt").path(input.Path, out)
		}
		cmd, err := b.build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, cmd, uc.timeouts.Edit); err != nil {
			return nil, err
		}
		p.setMeta("edit_operation", string(opts.Operation))
		return p.finalize(out, suggested)
	})
}
