package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// Rasterize renders every page to a JPEG. pdftoppm names the files itself
// (prefix-N.jpg, zero padded by page count), so they are discovered afterwards.
func (uc *ConversionUseCase) Rasterize(ctx context.Context, input domain.UploadedFile, opts domain.RasterizeOptions) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpRasterize, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if _, err := p.requireKind(inputs, domain.KindPDF); err != nil {
			return nil, err
		}

		prefix := uc.files.ResolvePath(strings.TrimSuffix(uc.files.UniqueName("page.jpg"), ".jpg"), domain.ScratchOutput)
		cmd, err := p.command(domain.ToolPoppler).
			flag("-jpeg", "-r", strconv.Itoa(opts.DPI), "-jpegopt", "quality="+strconv.Itoa(opts.Quality)).
			path(input.Path, prefix).
			build()
		if err != nil {
			return nil, err
		}
		_, execErr := p.exec(ctx, cmd, uc.timeouts.Rasterize)

		p.enter(domain.StageLocatingOutput)
		pages, err := discoverPages(prefix, ".jpg")
		for _, page := range pages {
			p.output(page.path)
		}
		if execErr != nil {
			return nil, execErr
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrOutputInaccessible, string(p.op), err)
		}
		if len(pages) == 0 {
			return nil, p.outputNotFound(prefix + "-1.jpg")
		}

		stem := input.Stem()
		artifacts := make([]domain.OutputArtifact, 0, len(pages))
		for _, page := range pages {
			artifact, err := p.verify(page.path, fmt.Sprintf("%s_page_%d.jpg", stem, page.number), page.number)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, artifact)
		}
		p.setMeta("pages", strconv.Itoa(len(artifacts)))
		p.setMeta("dpi", strconv.Itoa(opts.DPI))
		p.setMeta("quality", strconv.Itoa(opts.Quality))
		return artifacts, nil
	})
}

type numberedFile struct {
	path   string
	number int
}

// discoverPages lists prefix-N<ext> files sorted by N.
func discoverPages(prefix, ext string) ([]numberedFile, error) {
	matches, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	base := filepath.Base(prefix) + "-"
	pages := make([]numberedFile, 0, len(matches))
	for _, m := range matches {
		digits := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), base), ext)
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 {
			continue
		}
		pages = append(pages, numberedFile{path: m, number: n})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })
	return pages, nil
}

// ComposeImages places each image on its own page, in upload order.
func (uc *ConversionUseCase) ComposeImages(ctx context.Context, inputs []domain.UploadedFile, opts domain.ImageComposeOptions) (*domain.ConversionResult, error) {
	return uc.run(ctx, domain.OpImageCompose, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if len(inputs) == 0 {
			return nil, p.invalid("at least one image is required")
		}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if _, err := p.requireKind(inputs, domain.KindImage); err != nil {
			return nil, err
		}

		out := p.outputPath("images.pdf")
		b := p.command(domain.ToolImageMagick)
		for _, in := range inputs {
			b.path(in.Path)
		}
		if opts.AutoRotate {
			b.flag("-auto-orient")
		}
		cmd, err := b.
			flag("-quality", strconv.Itoa(opts.Quality), "-page", opts.PageGeometry()).
			path(out).
			build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, cmd, uc.timeouts.ImageCompose); err != nil {
			return nil, err
		}
		p.setMeta("images", strconv.Itoa(len(inputs)))
		p.setMeta("page_size", opts.PageSize)
		return p.finalize(out, "images.pdf")
	})
}
