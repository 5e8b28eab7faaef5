package usecase

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

type officeTarget struct {
	convertTo string
	infilter  string
}

var officeTargets = map[domain.OfficeTarget]officeTarget{
	domain.TargetPDF:  {convertTo: "pdf"},
	domain.TargetDOCX: {convertTo: "docx:MS Word 2007 XML", infilter: "writer_pdf_import"},
	domain.TargetPPTX: {convertTo: "pptx", infilter: "impress_pdf_import"},
	domain.TargetXLSX: {convertTo: "xlsx"},
}

// ConvertOffice converts between PDF and office formats with LibreOffice.
func (uc *ConversionUseCase) ConvertOffice(ctx context.Context, input domain.UploadedFile, opts domain.OfficeOptions) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpOfficeConvert, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if err := opts.Validate(); err != nil {
			return nil, err
		}

		accepted := []domain.FileKind{domain.KindPDF}
		if opts.Target == domain.TargetPDF {
			accepted = []domain.FileKind{domain.KindWord, domain.KindPresentation, domain.KindSpreadsheet}
			if opts.Source != "" {
				accepted = []domain.FileKind{opts.Source}
			}
		}
		kinds, err := p.requireKind(inputs, accepted...)
		if err != nil {
			return nil, err
		}

		p.setMeta("source_kind", string(kinds[0]))
		p.setMeta("target", string(opts.Target))
		return uc.renderWithOffice(ctx, p, input, opts.Target, uc.timeouts.Office)
	})
}

// RenderText lays a plain-text file out as a PDF.
func (uc *ConversionUseCase) RenderText(ctx context.Context, input domain.UploadedFile) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpTextRender, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if _, err := p.requireKind(inputs, domain.KindText); err != nil {
			return nil, err
		}
		return uc.renderWithOffice(ctx, p, input, domain.TargetPDF, uc.timeouts.Text)
	})
}

// renderWithOffice runs soffice with a private profile. soffice writes
// <outdir>/<input stem>.<ext> and cannot be told otherwise, so the file is
// renamed to a unique name once the process exits.
func (uc *ConversionUseCase) renderWithOffice(
	ctx context.Context,
	p *pipeline,
	input domain.UploadedFile,
	target domain.OfficeTarget,
	timeout time.Duration,
) ([]domain.OutputArtifact, error) {
	spec := officeTargets[target]
	ext := "." + string(target)

	profile := p.workPath("lo_profile")
	outDir := uc.files.Dir(domain.ScratchOutput)
	inputStem := strings.TrimSuffix(filepath.Base(input.Path), filepath.Ext(input.Path))
	expected := p.output(filepath.Join(outDir, inputStem+ext))

	suggested := input.Stem() + ext
	final := p.outputPath(suggested)

	b := p.command(domain.ToolLibreOffice).
		flag("-env:UserInstallation="+(&url.URL{Scheme: "file", Path: profile}).String(), "--headless", "--norestore")
	if spec.infilter != "" {
		b.flag("--infilter=" + spec.infilter)
	}
	cmd, err := b.
		flag("--convert-to", spec.convertTo, "--outdir", outDir).
		path(input.Path).
		build()
	if err != nil {
		return nil, err
	}
	if _, err := p.exec(ctx, cmd, timeout); err != nil {
		return nil, err
	}

	if err := p.adopt(expected, final); err != nil {
		return nil, err
	}
	artifact, err := p.verify(final, suggested, 0)
	if err != nil {
		return nil, err
	}
	return []domain.OutputArtifact{artifact}, nil
}
